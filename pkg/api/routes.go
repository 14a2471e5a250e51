package api

import (
	"net/http"
)

// Access is the level of identity a route requires.
type Access int

const (
	// Public routes run with or without a principal.
	Public Access = iota
	// Authenticated routes need a verified token.
	Authenticated
	// Admin routes need an allow-listed, verified administrator.
	Admin
)

func (a Access) String() string {
	switch a {
	case Authenticated:
		return "authenticated"
	case Admin:
		return "admin"
	default:
		return "public"
	}
}

// Route is one entry of the route table.
type Route struct {
	Name    string
	Method  string
	Path    string
	Access  Access
	Handler http.HandlerFunc
}

// Prefixes lists the mount points of the route table. The bare paths and the
// /api paths serve the same handlers.
var Prefixes = []string{"", "/api"}
