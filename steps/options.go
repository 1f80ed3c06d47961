package steps

import (
	"github.com/casualjim/tick"
	"github.com/casualjim/tick/eventbus"
	"github.com/segmentio/ksuid"
	"github.com/sirupsen/logrus"
)

// DefaultBatchSize is the number of synchronous advances allowed before a construct yields to the loop
const DefaultBatchSize = 3

// Option represents a configuration option for a flow, iterator or queue
type Option func(*config)

type config struct {
	batchSize int
	name      string
	log       logrus.FieldLogger
	bus       eventbus.EventBus
}

// WithBatchSize overrides the default batch size.
// A batch size of 0 or less never forces a yield.
func WithBatchSize(n int) Option {
	return func(c *config) { c.batchSize = n }
}

// WithName names the construct in logs, events and errors
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithLogger logs to the provided logger, the default is tick.NopLogger
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *config) { c.log = log }
}

// WithBus publishes done and lifecycle events to an existing bus
func WithBus(bus eventbus.EventBus) Option {
	return func(c *config) { c.bus = bus }
}

func configure(kind string, opts []Option) config {
	cfg := config{
		batchSize: DefaultBatchSize,
		name:      kind,
		log:       tick.NopLogger,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.bus == nil {
		cfg.bus = eventbus.New(cfg.log)
	}
	cfg.log = cfg.log.WithField("construct", cfg.name)
	return cfg
}

// chunk returns the end of the batch starting at pos
func (c config) chunk(pos, total int) int {
	if c.batchSize <= 0 || pos+c.batchSize > total {
		return total
	}
	return pos + c.batchSize
}

func runFields(run ksuid.KSUID) logrus.Fields {
	return logrus.Fields{"run": run.String()}
}
