package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNatsSubject_EmptyPrefixMatchesEverything(t *testing.T) {
	assert.Equal(t, "instrumentserver.>", natsSubject("instrumentserver.", ""))
}

func TestNatsSubject_TopicPrefixBecomesWildcard(t *testing.T) {
	assert.Equal(t, "instrumentserver.dmm.>", natsSubject("instrumentserver.", "dmm."))
}

func TestNatsSubject_BarePrefixGetsDotWildcard(t *testing.T) {
	assert.Equal(t, "instrumentserver.dmm.>", natsSubject("instrumentserver.", "dmm"))
}

func TestServerConfig_Defaults(t *testing.T) {
	cfg := ServerConfig{}.withDefaults()
	assert.Equal(t, "instrumentserver.rpc", cfg.RequestSubject)
	assert.NotZero(t, cfg.RequestTimeout)
	assert.NotEmpty(t, cfg.URL)
}

func TestClientConfig_Defaults(t *testing.T) {
	cfg := ClientConfig{}.withDefaults()
	assert.Equal(t, "instrumentserver.rpc", cfg.RequestSubject)
	assert.Equal(t, 3, cfg.MaxFailures)
	assert.NotZero(t, cfg.Timeout)
}
