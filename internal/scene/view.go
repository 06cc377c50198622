package scene

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
)

// Surface draws scenes. Implementations must tolerate Resize racing with
// Close and must ignore calls after Close.
type Surface interface {
	Draw(sc *Scene) error
	Resize(width int) error
	Close() error
}

// SurfaceFactory acquires a fresh surface.
type SurfaceFactory func() (Surface, error)

var (
	ErrViewClosed    = errors.New("view closed")
	ErrNotListening  = errors.New("no chart is displayed")
	ErrResizePending = errors.New("resize already pending")
)

// View owns at most one live surface for a display slot. Every Show releases
// the previous surface before acquiring the next one.
type View struct {
	factory SurfaceFactory
	resize  chan int

	mu      sync.Mutex
	surface Surface
	detach  chan struct{}
	done    chan struct{}
	closed  bool
}

// NewView creates a view. resize carries width requests to the live surface
// and may be nil when the host never resizes.
func NewView(factory SurfaceFactory, resize chan int) *View {
	return &View{factory: factory, resize: resize}
}

// Show replaces whatever is displayed with sc. A nil scene or one without
// candles leaves the view empty.
func (v *View) Show(sc *Scene) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrViewClosed
	}
	if err := v.releaseLocked(); err != nil {
		log.WithError(err).Warn("release previous surface")
	}
	if sc == nil || len(sc.Candles) == 0 {
		return nil
	}

	s, err := v.factory()
	if err != nil {
		return fmt.Errorf("acquire surface: %w", err)
	}
	v.surface = s
	v.attachLocked(s)

	if err := s.Draw(sc); err != nil {
		return multierr.Append(fmt.Errorf("draw scene: %w", err), v.releaseLocked())
	}
	return nil
}

// Clear releases the live surface, if any.
func (v *View) Clear() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.releaseLocked()
}

// Close releases the surface and refuses further scenes.
func (v *View) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return v.releaseLocked()
}

// Active reports whether a surface is currently held.
func (v *View) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.surface != nil
}

// Listening reports whether a resize listener is attached.
func (v *View) Listening() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.detach != nil
}

// RequestResize queues a new width for the displayed surface. It fails with
// ErrNotListening when nothing is displayed, so a width never outlives the
// surface it was meant for.
func (v *View) RequestResize(width int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.detach == nil {
		return ErrNotListening
	}
	select {
	case v.resize <- width:
		return nil
	default:
		return ErrResizePending
	}
}

func (v *View) attachLocked(s Surface) {
	if v.resize == nil {
		return
	}
	detach := make(chan struct{})
	done := make(chan struct{})
	v.detach, v.done = detach, done

	go func() {
		defer close(done)
		for {
			select {
			case <-detach:
				return
			case w, ok := <-v.resize:
				if !ok {
					return
				}
				if err := s.Resize(w); err != nil {
					log.WithError(err).Warnf("resize surface to %d", w)
				}
			}
		}
	}()
}

// drainResizeLocked drops widths queued for a surface that is going away.
func (v *View) drainResizeLocked() {
	for {
		select {
		case _, ok := <-v.resize:
			if !ok {
				return
			}
		default:
			return
		}
	}
}

func (v *View) releaseLocked() error {
	if v.detach != nil {
		close(v.detach)
		<-v.done
		v.detach, v.done = nil, nil
		v.drainResizeLocked()
	}
	if v.surface == nil {
		return nil
	}
	s := v.surface
	v.surface = nil
	if err := s.Close(); err != nil {
		return fmt.Errorf("close surface: %w", err)
	}
	return nil
}
