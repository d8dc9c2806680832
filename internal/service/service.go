// Package service contains the business rules of the hub.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)      → parses requests, writes JSON or pages
//	Service (this pkg)  → validates, enforces rules, orchestrates
//	Repository (data)   → reads and writes rows
//
// Services receive repository interfaces, never the concrete store, and
// take the caller's model.Session explicitly. Nothing here knows about
// HTTP, cookies or SQL, so every rule is testable with plain function calls
// and in-memory fakes (see the *_test.go files).
//
// DEPENDENCY CHAIN:
//
//	main.go creates:  sqlstore.DB → services → handlers
//	At runtime:       handler calls service calls repository
package service

import (
	"strings"

	"github.com/sakif/planet-hub/internal/apperror"
	"github.com/sakif/planet-hub/internal/model"
	"github.com/sakif/planet-hub/internal/repository"
)

// requireSession rejects anonymous callers of mutating operations.
func requireSession(session model.Session, action string) error {
	if !session.Valid() {
		return apperror.Unauthorized("sign in to " + action)
	}
	return nil
}

// Sort names accepted by list endpoints. Anything else falls back to newest.
const (
	SortNewest = "newest"
	SortStars  = "stars"
)

func listOptions(sort string, limit, offset int) repository.ListOptions {
	opts := repository.ListOptions{OrderBy: "created_at", Desc: true, Limit: limit, Offset: offset}
	if strings.EqualFold(sort, SortStars) {
		opts.OrderBy = "stars"
	}
	return opts.Normalize()
}
