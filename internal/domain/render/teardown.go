package render

import (
	"fmt"
	"io"

	"go.uber.org/zap"
)

// teardown closes whatever the render acquired. A failing close is logged and
// does not stop the others.
func (e *Environment) teardown(api *API, res *resources) {
	steps := []struct {
		name string
		c    io.Closer
	}{
		{ResourceGate, res.gate},
		{ResourceWindow, res.window},
		{ResourceLoader, res.loader},
		{ResourceSetup, res.setup},
	}
	for _, step := range steps {
		if step.c == nil {
			continue
		}
		if err := closeSafely(step.c); err != nil {
			api.Logger.Error(fmt.Sprintf("Closeable encountered an error: %v", err), zap.String("resource", step.name))
			e.metrics.RecordTeardownError(step.name)
		}
	}
}

func closeSafely(c io.Closer) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during close: %v", r)
		}
	}()
	return c.Close()
}
