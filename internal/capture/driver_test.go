package capture

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ardiwn/mediaharvest/internal/common/config"
	"github.com/ardiwn/mediaharvest/internal/provider"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFatalNavigation(t *testing.T) {
	assert.True(t, isFatalNavigation(errors.New("page load error net::ERR_NAME_NOT_RESOLVED")))
	assert.True(t, isFatalNavigation(errors.New("net::ERR_CONNECTION_REFUSED")))

	// A DOM that is merely slow to settle is not fatal.
	assert.False(t, isFatalNavigation(context.DeadlineExceeded))
	assert.False(t, isFatalNavigation(fmt.Errorf("waiting for body: %w", context.DeadlineExceeded)))
}

func TestIsIgnorableRace(t *testing.T) {
	assert.True(t, isIgnorableRace(context.Canceled))
	assert.True(t, isIgnorableRace(errors.New("target closed")))
	assert.True(t, isIgnorableRace(errors.New("frame detached")))

	assert.False(t, isIgnorableRace(nil))
	assert.False(t, isIgnorableRace(errors.New("element not visible")))
}

func TestRunInteractionReportsHardNavigationFailure(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	cfg := &config.CaptureConfig{ManifestWaitSec: 1, CollectWindowMs: 10, FirstClickSec: 1, LongClickSec: 1, ShortClickSec: 1}
	spec, err := provider.Default(cfg).Lookup("vidora")
	require.NoError(t, err)

	// A context without a browser fails navigation outright; the failure must
	// surface on the channel instead of being swallowed.
	navFailed := make(chan error, 1)
	runInteraction(context.Background(), spec, "https://vidora.stream/embed/movie/550", cfg.FirstClick(), navFailed, log.WithField("provider", "vidora"))

	select {
	case err := <-navFailed:
		require.Error(t, err)
	default:
		t.Fatal("hard navigation failure was not reported")
	}
}
