// Package notify surfaces terminal request failures to the user by
// category. Each failure is reported once; nothing here retries.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"

	"github.com/merchkit/shopfront/internal/api"
	"github.com/merchkit/shopfront/internal/telemetry"
)

// Category groups failures by what the user should understand.
type Category string

const (
	// CategoryAuth: logged out, credentials no longer valid.
	CategoryAuth Category = "auth"
	// CategoryPermission: the account may not perform the action.
	CategoryPermission Category = "permission"
	// CategoryRateLimited: too many requests.
	CategoryRateLimited Category = "rate_limited"
	// CategoryServer: the backend failed.
	CategoryServer Category = "server"
	// CategoryConnectivity: network failure or timeout, distinct from a
	// server rejection.
	CategoryConnectivity Category = "connectivity"
)

// Categorize maps a failure kind to a notification category. BadRequest
// and NotFound return "" -- those are contextual, handled by the caller.
func Categorize(kind api.Kind) Category {
	switch kind {
	case api.KindAuth:
		return CategoryAuth
	case api.KindForbidden:
		return CategoryPermission
	case api.KindRateLimited:
		return CategoryRateLimited
	case api.KindServer:
		return CategoryServer
	case api.KindTransport, api.KindTimeout:
		return CategoryConnectivity
	default:
		return ""
	}
}

// headline is the user-facing lead line per category.
var headline = map[Category]string{
	CategoryAuth:         "Signed out",
	CategoryPermission:   "Not allowed",
	CategoryRateLimited:  "Too many requests",
	CategoryServer:       "Something went wrong",
	CategoryConnectivity: "Connection problem",
}

// Notifier receives user-visible failure notifications.
type Notifier interface {
	Notify(cat Category, detail string)
}

// Console prints notifications to a terminal, optionally colored.
type Console struct {
	mu      sync.Mutex
	out     io.Writer
	color   bool
	metrics *telemetry.Metrics
}

// NewConsole creates a console notifier writing to stderr.
func NewConsole(useColor bool, metrics *telemetry.Metrics) *Console {
	return &Console{out: os.Stderr, color: useColor, metrics: metrics}
}

// Notify prints one notification line.
func (c *Console) Notify(cat Category, detail string) {
	if c.metrics != nil {
		c.metrics.Notifications.WithLabelValues(string(cat)).Inc()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	head := headline[cat]
	if c.color {
		paint := color.New(color.FgYellow, color.Bold)
		if cat == CategoryServer || cat == CategoryConnectivity {
			paint = color.New(color.FgRed, color.Bold)
		}
		fmt.Fprintf(c.out, "%s %s\n", paint.Sprint(head+":"), detail)
		return
	}
	fmt.Fprintf(c.out, "%s: %s\n", head, detail)
}

// Reporter adapts a Notifier to the dispatcher's failure hook.
func Reporter(n Notifier) api.Reporter {
	return func(kind api.Kind, detail string) {
		if cat := Categorize(kind); cat != "" {
			n.Notify(cat, detail)
		}
	}
}
