package accesscontrol

// RoleAdmin grants the moderation, override, pricing and sweep endpoints.
const RoleAdmin = "admin"
