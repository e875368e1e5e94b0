package connectivity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nguyentranbao-ct/chat-sync/internal/models"
	"github.com/nguyentranbao-ct/chat-sync/pkg/util"
)

var errReachable = errors.New("reachable")

type ProbeOptions struct {
	URLs     []string
	Interval time.Duration
	Timeout  time.Duration
}

// Probe polls a set of URLs and considers the device connected while any of
// them answers with a non-5xx status.
type Probe struct {
	*notifier
	opts   ProbeOptions
	client *resty.Client
	logger *zap.SugaredLogger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewProbe(opts ProbeOptions, logger *zap.SugaredLogger) *Probe {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &Probe{
		notifier: newNotifier(models.ConnectivityUnknown),
		opts:     opts,
		client:   util.NewRestyClient(opts.Timeout, 0),
		logger:   logger,
	}
}

// Start runs one probe synchronously, so Current is resolved on return, then
// keeps polling until Close.
func (p *Probe) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.report(p.probe(ctx))

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.opts.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				state := p.probe(ctx)
				if ctx.Err() != nil {
					return
				}
				if p.report(state) {
					p.logger.Infow("connectivity changed", "state", state)
				}
			}
		}
	}()
}

func (p *Probe) Close() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

func (p *Probe) probe(ctx context.Context) models.ConnectivityState {
	group, gctx := errgroup.WithContext(ctx)
	for _, url := range p.opts.URLs {
		url := url
		group.Go(func() error {
			resp, err := p.client.R().SetContext(gctx).Head(url)
			if err != nil {
				return nil
			}
			if resp.StatusCode() < http.StatusInternalServerError {
				// Stops the remaining probes.
				return errReachable
			}
			return nil
		})
	}
	if errors.Is(group.Wait(), errReachable) {
		return models.ConnectivityConnected
	}
	return models.ConnectivityDisconnected
}
