// Package auth authenticates API callers for the classroom controller.
//
// Accounts are operators listed in the configuration file, each with an
// Argon2id password hash and one of three roles:
//
//	viewer    read state, history and rules
//	operator  viewer plus direct appliance control
//	admin     operator plus rule authoring
//
// A successful login yields a short-lived HS256 JWT carrying the username
// and role. Permissions are derived from the role on every request; nothing
// is looked up per request.
package auth
