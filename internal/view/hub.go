// =============================================================================
// SIAFI/EFD Reconciler - View Registry
// =============================================================================
//
// The Hub is the registry that attaches components to screen regions. It is
// created by the application shell and passed explicitly to the ledgers and
// the reconciliation engine; there is no package-level instance.
//
// LIFECYCLE:
//   Subscribe   -> the component is known (replacing any with the same name)
//   Publish     -> the component is rendered into its parent region,
//                  replacing whatever occupied it, and its button is enabled
//   Unpublish   -> the component is removed from screen, button disabled
//   Unsubscribe -> removed from screen (if shown) and forgotten
//
// =============================================================================

package view

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNotSubscribed is returned when a name is not in the registry.
	ErrNotSubscribed = errors.New("component not subscribed")

	// ErrNotPublished is returned when removing a component that is not on screen.
	ErrNotPublished = errors.New("component not published")

	// ErrInvalidComponent is returned when subscribing nil or an unnamed component.
	ErrInvalidComponent = errors.New("invalid component")

	// ErrUnknownView is returned by Select for an unrecognized view.
	ErrUnknownView = errors.New("unknown view")
)

// =============================================================================
// INTERFACES
// =============================================================================

// Registry is what the pipelines need from the view layer.
type Registry interface {
	Subscribe(c *Component) error
	Unsubscribe(name string) error
	Publish(name string) error
	Unpublish(name string) error
}

// Renderer draws and removes components. Implementations live in the
// application shell.
type Renderer interface {
	Render(c *Component) error
	Remove(c *Component) error
}

// =============================================================================
// HUB
// =============================================================================

// Hub is an ordered, explicitly owned Registry.
type Hub struct {
	order      []string
	components map[string]*Component
	screen     map[string]string // parent id -> component name
	buttons    map[string]bool
	renderer   Renderer
	logger     zerolog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithRenderer sets the renderer driven by Publish and Unpublish.
func WithRenderer(r Renderer) HubOption {
	return func(h *Hub) {
		h.renderer = r
	}
}

// WithLogger sets the hub logger.
func WithLogger(logger zerolog.Logger) HubOption {
	return func(h *Hub) {
		h.logger = logger
	}
}

// NewHub creates an empty hub. Without a renderer, publishing only tracks
// screen state.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		components: make(map[string]*Component),
		screen:     make(map[string]string),
		buttons:    make(map[string]bool),
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetRenderer attaches or replaces the renderer. Components already on
// screen are not redrawn.
func (h *Hub) SetRenderer(r Renderer) {
	h.renderer = r
}

// Subscribe registers a component. A component with the same name is
// replaced in place, keeping its position and screen state.
func (h *Hub) Subscribe(c *Component) error {
	if c == nil || c.Name == "" {
		return ErrInvalidComponent
	}

	if _, exists := h.components[c.Name]; !exists {
		h.order = append(h.order, c.Name)
	}
	h.components[c.Name] = c

	h.logger.Debug().Str("component", c.Name).Msg("component subscribed")
	return nil
}

// Unsubscribe removes a component from screen, if shown, and forgets it.
func (h *Hub) Unsubscribe(name string) error {
	if _, exists := h.components[name]; !exists {
		return fmt.Errorf("failed to unsubscribe '%s': %w", name, ErrNotSubscribed)
	}

	if err := h.Unpublish(name); err != nil && !errors.Is(err, ErrNotPublished) {
		return err
	}

	delete(h.components, name)
	for i, n := range h.order {
		if n == name {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}

	h.logger.Debug().Str("component", name).Msg("component unsubscribed")
	return nil
}

// Publish renders a component into its parent region.
func (h *Hub) Publish(name string) error {
	c, exists := h.components[name]
	if !exists {
		return fmt.Errorf("component '%s' not found: %w", name, ErrNotSubscribed)
	}

	if h.renderer != nil {
		if err := h.renderer.Render(c); err != nil {
			return fmt.Errorf("failed to render component '%s': %w", name, err)
		}
	}

	if previous, occupied := h.screen[c.ParentID]; occupied && previous != name {
		if prev, ok := h.components[previous]; ok {
			h.setButton(prev.ButtonID, false)
		}
	}
	h.screen[c.ParentID] = name
	h.setButton(c.ButtonID, true)

	h.logger.Debug().Str("component", name).Str("parent", c.ParentID).Msg("component published")
	return nil
}

// Unpublish removes a component from screen.
func (h *Hub) Unpublish(name string) error {
	c, exists := h.components[name]
	if !exists {
		return fmt.Errorf("failed to remove component '%s': %w", name, ErrNotSubscribed)
	}
	if h.screen[c.ParentID] != name {
		return fmt.Errorf("failed to remove component '%s': %w", name, ErrNotPublished)
	}

	if h.renderer != nil {
		if err := h.renderer.Remove(c); err != nil {
			return fmt.Errorf("failed to remove component '%s': %w", name, err)
		}
	}

	delete(h.screen, c.ParentID)
	h.setButton(c.ButtonID, false)

	h.logger.Debug().Str("component", name).Msg("component unpublished")
	return nil
}

func (h *Hub) setButton(id string, enabled bool) {
	if id == "" {
		return
	}
	h.buttons[id] = enabled
}

// =============================================================================
// QUERIES
// =============================================================================

// Component returns a subscribed component by name.
func (h *Hub) Component(name string) (*Component, bool) {
	c, ok := h.components[name]
	return c, ok
}

// Names returns subscribed names in subscription order.
func (h *Hub) Names() []string {
	return append([]string(nil), h.order...)
}

// IsPublished reports whether the named component is on screen.
func (h *Hub) IsPublished(name string) bool {
	c, ok := h.components[name]
	return ok && h.screen[c.ParentID] == name
}

// Published returns the components on screen, in subscription order.
func (h *Hub) Published() []*Component {
	var out []*Component
	for _, name := range h.order {
		if h.IsPublished(name) {
			out = append(out, h.components[name])
		}
	}
	return out
}

// ButtonEnabled reports whether the button with the given id is enabled.
func (h *Hub) ButtonEnabled(id string) bool {
	return h.buttons[id]
}

// =============================================================================
// VIEW SELECTION
// =============================================================================

// Views accepted by Select.
const (
	ViewSiafi      = "siafi"
	ViewEfd        = "efd"
	ViewBoth       = "siafi&efd"
	ViewReconciled = "siafi-efd"
)

// Views lists the accepted views.
var Views = []string{ViewSiafi, ViewEfd, ViewBoth, ViewReconciled}

// selection is the set of components shown and hidden for one view.
type selection struct {
	show []string
	hide []string
}

var (
	siafiGroup = []string{SiafiTableName, SiafiInfoName}
	efdGroup   = []string{EfdTableName, EfdInfoName}
	parseGroup = []string{ParseTableName, ParseInfoName}
)

var selections = map[string]selection{
	ViewSiafi:      {show: siafiGroup, hide: concat(efdGroup, parseGroup)},
	ViewEfd:        {show: efdGroup, hide: concat(siafiGroup, parseGroup)},
	ViewBoth:       {show: concat(siafiGroup, efdGroup), hide: parseGroup},
	ViewReconciled: {show: parseGroup, hide: concat(siafiGroup, efdGroup)},
}

// Select shows the components of a view and hides the others. Components
// that are not subscribed yet, or already hidden, are skipped.
func (h *Hub) Select(view string) error {
	sel, ok := selections[view]
	if !ok {
		return fmt.Errorf("%w: %q (valid: %v)", ErrUnknownView, view, Views)
	}

	for _, name := range sel.hide {
		if err := h.Unpublish(name); err != nil && !errors.Is(err, ErrNotPublished) && !errors.Is(err, ErrNotSubscribed) {
			return err
		}
	}
	for _, name := range sel.show {
		if err := h.Publish(name); err != nil && !errors.Is(err, ErrNotSubscribed) {
			return err
		}
	}

	h.logger.Debug().Str("view", view).Int("published", len(h.Published())).Msg("view selected")
	return nil
}

func concat(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
