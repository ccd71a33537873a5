package httpapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/store"
)

// Identity headers. Transport authentication happens upstream; by the
// time a request reaches this service it carries a resolved identity.
const (
	headerUserEmail = "X-User-Email"
	headerUserAdmin = "X-User-Admin"
)

const userContextKey = "docdex.user"

func adminEmailSet(emails []string) map[string]struct{} {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}

// identity resolves the caller headers into a store.User, creating the
// row on first sight. Requests without an email proceed with a nil user;
// the permission guard turns that into Unauthorized where it matters.
func (s *Server) identity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		email := strings.TrimSpace(c.Request().Header.Get(headerUserEmail))
		if email == "" {
			return next(c)
		}

		_, allowListed := s.adminEmails[strings.ToLower(email)]
		admin := allowListed || c.Request().Header.Get(headerUserAdmin) == "true"

		user, err := s.store.GetOrCreateUserByEmail(c.Request().Context(), email, admin)
		if err != nil {
			return err
		}

		c.Set(userContextKey, user)
		ctx := logging.WithCaller(c.Request().Context(), user.ID.String())
		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}

// currentUser returns the resolved caller, or nil.
func currentUser(c echo.Context) *store.User {
	user, _ := c.Get(userContextKey).(*store.User)
	return user
}
