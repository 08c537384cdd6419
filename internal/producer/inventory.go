package producer

import (
	"context"
	"fmt"

	"github.com/kebairia/digibankup/internal/logger"
)

const NameSnipeit = "snipeit"

// Inventory is the Snipe-IT backup. The deployed Snipe-IT version exposes no
// backup API, so the producer always reports itself as skipped without
// contacting the server.
type Inventory struct {
	endpoint string
	subpath  string
	log      logger.Logger
}

// NewInventory returns the Snipe-IT producer for endpoint.
func NewInventory(endpoint, subpath string, log logger.Logger) *Inventory {
	return &Inventory{endpoint: endpoint, subpath: subpath, log: log}
}

func (i *Inventory) Name() string {
	return NameSnipeit
}

func (i *Inventory) Destination() Destination {
	return Destination{Subpath: i.subpath, IsDir: true}
}

func (i *Inventory) Produce(_ context.Context, _ string) error {
	i.log.Debug("inventory backup requested", "endpoint", i.endpoint)
	return fmt.Errorf("%w: Snipe-IT server does not support backups", ErrSkipped)
}
