package routing

import (
	"encoding/json"
	"net/http"
	"strings"

	modular "github.com/zebra-devops/MarketEdge-Platform-sub003"
)

// Collector gathers the routes a module declares through RegisterRoutes.
type Collector struct {
	routes []Route
}

var _ modular.RouteRegistrar = (*Collector)(nil)

// Handle records handler for method and pattern.
func (c *Collector) Handle(method, pattern string, handler http.Handler) {
	c.routes = append(c.routes, Route{
		Pattern: pattern,
		Methods: []string{strings.ToUpper(method)},
		Handler: handler,
	})
}

// HandleFunc records a handler function.
func (c *Collector) HandleFunc(method, pattern string, handler http.HandlerFunc) {
	var h http.Handler
	if handler != nil {
		h = handler
	}
	c.Handle(method, pattern, h)
}

// Routes returns what has been collected.
func (c *Collector) Routes() []Route {
	return c.routes
}

// CollectRoutes asks mod for its routes.
func CollectRoutes(mod modular.Module) []Route {
	var c Collector
	mod.RegisterRoutes(&c)
	return c.Routes()
}

// StubRoutes builds placeholder routes for the endpoints declared in
// metadata. They answer 501 until a module instance is loaded.
func StubRoutes(metadata modular.ModuleMetadata) []Route {
	routes := make([]Route, 0, len(metadata.APIEndpoints))
	for _, decl := range metadata.APIEndpoints {
		ep := modular.ParseEndpoint(decl)
		routes = append(routes, Route{
			Pattern: ep.Path,
			Methods: []string{ep.Method},
			Handler: notImplemented(metadata.ID),
		})
	}
	return routes
}

func notImplemented(moduleID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotImplemented)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":  "module is registered but not loaded",
			"module": moduleID,
		})
	})
}
