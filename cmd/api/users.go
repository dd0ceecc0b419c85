package main

import (
	"net/http"

	"adslots/internal/domain/users"
)

type userKey string

const (
	userCtx userKey = "user"
	roleCtx userKey = "role"
)

func getUserFromContext(r *http.Request) *users.User {
	if user, ok := r.Context().Value(userCtx).(*users.User); ok {
		return user
	}
	return nil
}

func getRoleFromContext(r *http.Request) string {
	role, _ := r.Context().Value(roleCtx).(string)
	return role
}
