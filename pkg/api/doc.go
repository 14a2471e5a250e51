// Package api provides the HTTP REST API server for potkeeper.
//
// # Overview
//
// The API is built on gorilla/mux and organized into handler groups, each of
// which contributes a slice of Route values to the server's route table:
//
//   - AccountHandlers: registration, login, anonymous identify, password and
//     email flows
//   - PotHandlers: pots, care records, timelines, care schedules and image
//     upload, all scoped to the calling user
//   - CatalogHandlers: public plant catalog reads and care advice
//   - AdminHandlers: catalog maintenance and user administration
//
// Every route is mounted twice, once at the root and once under /api.
//
// # Access
//
// Each Route declares an Access level. Public routes see an optional
// principal. Authenticated routes answer 401 without one. Admin routes also
// answer 403 when the caller is not an administrator.
//
// Ownership failures on user resources surface as 404 so that the existence
// of another user's data is never revealed.
//
// # Usage
//
//	server := api.NewServer(api.Dependencies{
//		Accounts:  accountsSvc,
//		Lifecycle: lifecycleSvc,
//		Admin:     adminSvc,
//		Catalog:   cat,
//		Identity:  middleware.NewIdentityMiddleware(codec, logger),
//		Admins:    gate,
//		Logger:    logger,
//	})
//	http.ListenAndServe(":8080", server.Handler())
//
// # Responses
//
// Successful bodies carry "success": true. Reads put their payload under
// "data", writes add a "message". Errors are {"error": msg} with the status
// derived from the apperr kind.
package api
