package middleware

import (
	"context"
	"errors"
	"net/http"

	"horizon-web/internal/gate"
	"horizon-web/internal/session"

	"github.com/gin-gonic/gin"
)

// Protected lets only signed-in visitors through.
func (g *Gate) Protected() gin.HandlerFunc { return g.Guard(g.ctrl.Protected()) }

// GuestOnly lets only anonymous visitors through.
func (g *Gate) GuestOnly() gin.HandlerFunc { return g.Guard(g.ctrl.GuestOnly()) }

// Public lets every visitor through and hands the content the session, if any.
func (g *Gate) Public() gin.HandlerFunc { return g.Guard(g.ctrl.Public()) }

// Entry redirects every visitor to sign-in or the landing page.
func (g *Gate) Entry() gin.HandlerFunc { return g.Guard(g.ctrl.Entry()) }

// Guard mounts a view with policy for the request, waits for the session to
// resolve and then either redirects or runs the rest of the chain with the
// page props in the context. A redirect requested while the chain runs (sign
// out) is written afterwards unless the handler already responded.
func (g *Gate) Guard(policy gate.Policy) gin.HandlerFunc {
	return g.guard(g.ctrl, policy)
}

// GuardWith is Guard for a controller other than the gate's own, such as one
// carrying a resolution hook.
func (g *Gate) GuardWith(ctrl *gate.Controller, policy gate.Policy) gin.HandlerFunc {
	return g.guard(ctrl, policy)
}

func (g *Gate) guard(ctrl *gate.Controller, policy gate.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		nav := &bufferedNavigator{}
		view := ctrl.NewView(policy, nav)
		defer view.Unmount()

		token := session.TokenFromRequest(c.Request, g.cfg.CookieName)
		view.Mount(c.Request.Context(), token, false)

		// the placeholder refreshes with a GET, so other methods keep waiting
		waitCtx := c.Request.Context()
		if g.cfg.PlaceholderAfter > 0 && isNavigation(c.Request.Method) {
			var cancel context.CancelFunc
			waitCtx, cancel = context.WithTimeout(waitCtx, g.cfg.PlaceholderAfter)
			defer cancel()
		}

		if _, err := view.Await(waitCtx); err != nil {
			if c.Request.Context().Err() != nil {
				// client went away
				c.Abort()
				return
			}
			if errors.Is(err, context.DeadlineExceeded) {
				g.placeholder(c)
				return
			}
			g.logger.ErrorContext(c.Request.Context(), "session gate wait failed", "error", err)
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		out := view.Render()
		switch out.Kind {
		case gate.OutcomePlaceholder:
			g.placeholder(c)
			return
		case gate.OutcomeRedirect:
			c.Redirect(http.StatusFound, out.Path)
			c.Abort()
			return
		}

		// the settle redirect was already handled through Render
		nav.take()

		c.Set(ginPropsKey, out.Props)
		c.Request = c.Request.WithContext(withProps(c.Request.Context(), out.Props))
		c.Next()

		if path := nav.take(); path != "" && !c.Writer.Written() {
			c.Redirect(http.StatusFound, path)
		}
	}
}

func isNavigation(method string) bool {
	return method == http.MethodGet || method == http.MethodHead
}

func (g *Gate) placeholder(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.HTML(http.StatusOK, g.cfg.PlaceholderTemplate, gin.H{
		"RefreshURL": c.Request.URL.RequestURI(),
	})
	c.Abort()
}

// Props returns the props stored by Guard on c.
func Props(c *gin.Context) (gate.Props, bool) {
	v, ok := c.Get(ginPropsKey)
	if !ok {
		return gate.Props{}, false
	}
	p, ok := v.(gate.Props)
	return p, ok
}
