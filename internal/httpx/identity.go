package httpx

import (
	"errors"
	"net/http"

	"github.com/ariefcatur/go-realtime-offers/internal/orders"
)

// Identity is resolved upstream (gateway / auth proxy) and trusted here.
const (
	HeaderUserID   = "X-User-Id"
	HeaderActingAs = "X-Acting-As"
)

var errNoIdentity = errors.New("missing identity")

// resolveActor reads the caller identity and asserted role. fallback is used
// when the request does not assert a role; an empty fallback makes the role required.
func resolveActor(r *http.Request, fallback orders.Role) (orders.Actor, error) {
	id := r.Header.Get(HeaderUserID)
	if id == "" {
		return orders.Actor{}, errNoIdentity
	}
	raw := r.Header.Get(HeaderActingAs)
	if raw == "" {
		raw = string(fallback)
	}
	role, err := orders.ParseRole(raw)
	if err != nil {
		return orders.Actor{}, err
	}
	return orders.Actor{ID: id, Role: role}, nil
}
