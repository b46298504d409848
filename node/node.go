// Package node wires the thumbnail cache and the peer-to-peer file service
// into one running instance.
package node

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/thumbshare/config"
	"github.com/opd-ai/thumbshare/crypto"
	"github.com/opd-ai/thumbshare/file"
	"github.com/opd-ai/thumbshare/index"
	"github.com/opd-ai/thumbshare/library"
	"github.com/opd-ai/thumbshare/media"
	"github.com/opd-ai/thumbshare/metrics"
	"github.com/opd-ai/thumbshare/p2p"
	"github.com/opd-ai/thumbshare/thumbnail"
	"github.com/opd-ai/thumbshare/transport"
	"github.com/opd-ai/thumbshare/worker"
)

// Node is one running instance.
type Node struct {
	cfg *config.Config

	libraries *library.Manager
	index     *index.Index
	generator *thumbnail.Generator
	throttle  *thumbnail.Throttle
	transfers *file.Manager
	transport *transport.TCPTransport
	server    *p2p.Server
	requester *p2p.Requester

	metrics  *metrics.Metrics
	registry *prometheus.Registry
}

// New builds a node from cfg. Nothing listens until Start.
func New(cfg *config.Config) (*Node, error) {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}
	if err := ConfigureLogging(cfg.Logging); err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}

	n := &Node{
		cfg:       cfg,
		libraries: library.NewManager(),
		transfers: file.NewManager(),
	}

	if cfg.Metrics.Enabled {
		n.registry = prometheus.NewRegistry()
		n.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		n.metrics = metrics.New(n.registry)
	}

	if err := n.loadLibraries(cfg.Libraries); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.IndexDirectory(), 0o755); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	idx, err := index.Open(cfg.IndexDirectory())
	if err != nil {
		return nil, err
	}
	n.index = idx

	n.generator = thumbnail.NewGenerator(thumbnail.NewStore(cfg.ThumbnailsDirectory()), thumbnail.Options{
		Pool:             worker.NewPool(cfg.Thumbnails.Workers),
		Renderer:         documentRenderer(cfg.Thumbnails.Documents),
		Extractor:        frameExtractor(cfg.Thumbnails.Video),
		Timeout:          cfg.Thumbnails.GenerationTimeout,
		BatchConcurrency: cfg.Thumbnails.BatchConcurrency,
		Recorder:         n.metrics,
	})
	n.throttle = thumbnail.NewThrottle(cfg.Thumbnails.SingleInterval)

	n.transport = transport.NewTCPTransport(transport.Options{
		RequestsPerSecond: cfg.P2P.RequestsPerSecond,
		Burst:             cfg.P2P.Burst,
		OnDrop:            n.metrics.ConnectionDropped,
	})
	for _, peer := range cfg.P2P.Peers {
		identity, err := crypto.ParsePublicKey(peer.Identity)
		if err != nil {
			n.index.Close()
			return nil, fmt.Errorf("peer %s: %w", peer.Address, err)
		}
		n.transport.AddPeer(identity, peer.Address)
	}

	n.server = &p2p.Server{
		Libraries:     n.libraries,
		Index:         n.index,
		ThumbnailsDir: cfg.ThumbnailsDirectory(),
		Metrics:       n.metrics,
		Transfers:     n.transfers,
	}
	n.requester = &p2p.Requester{
		Sessions:  n.transport,
		Keys:      n.libraries,
		Metrics:   n.metrics,
		Transfers: n.transfers,
	}

	logrus.WithFields(logrus.Fields{
		"function":       "New",
		"data_directory": cfg.DataDirectory,
		"libraries":      len(cfg.Libraries),
		"peers":          len(cfg.P2P.Peers),
		"video":          n.generator.VideoEnabled(),
		"metrics":        cfg.Metrics.Enabled,
	}).Info("Node created")
	return n, nil
}

func (n *Node) loadLibraries(libs []config.LibraryConfig) error {
	for _, lc := range libs {
		id, err := uuid.Parse(lc.ID)
		if err != nil {
			return fmt.Errorf("library %q: %w", lc.Name, err)
		}
		identity, err := crypto.ParseSecretKey(lc.PrivateKey)
		if err != nil {
			return fmt.Errorf("library %q: private key: %w", lc.Name, err)
		}
		members := make([]crypto.PublicKey, 0, len(lc.Members))
		for _, m := range lc.Members {
			key, err := crypto.ParsePublicKey(m)
			if err != nil {
				return fmt.Errorf("library %q: member: %w", lc.Name, err)
			}
			members = append(members, key)
		}
		if _, err := n.libraries.Add(id, lc.Name, identity, members...); err != nil {
			return err
		}
	}
	return nil
}

func documentRenderer(cfg config.DocumentsConfig) media.DocumentRenderer {
	if !cfg.Enabled {
		return nil
	}
	if !media.Available(cfg.PdftoppmPath) {
		logrus.WithField("binary", cfg.PdftoppmPath).Warn("Document thumbnails disabled: renderer not found")
		return nil
	}
	return media.Pdftoppm{Path: cfg.PdftoppmPath, DPI: cfg.DPI}
}

func frameExtractor(cfg config.VideoConfig) media.FrameExtractor {
	if !cfg.Enabled {
		return nil
	}
	if !media.Available(cfg.FFmpegPath) {
		logrus.WithField("binary", cfg.FFmpegPath).Warn("Video thumbnails disabled: ffmpeg not found")
		return nil
	}
	return media.FFmpeg{Path: cfg.FFmpegPath}
}

// Start accepts inbound requests when a listen address is configured.
func (n *Node) Start(ctx context.Context) error {
	if n.cfg.P2P.Listen == "" {
		logrus.WithField("function", "Start").Info("No listen address, serving disabled")
		return nil
	}
	return n.transport.Listen(n.cfg.P2P.Listen, n.server.Handle)
}

// Close stops serving, cancels running transfers and closes the index.
func (n *Node) Close() error {
	for _, t := range n.transfers.Active() {
		t.Cancel()
	}
	err := errors.Join(n.transport.Close(), n.index.Close())
	n.libraries.Close()
	return err
}

// LocalAddr is the listening address, or nil when not serving.
func (n *Node) LocalAddr() net.Addr {
	return n.transport.LocalAddr()
}

// Thumbnails returns the generator.
func (n *Node) Thumbnails() *thumbnail.Generator {
	return n.generator
}

// Libraries returns the library registry.
func (n *Node) Libraries() *library.Manager {
	return n.libraries
}

// Index returns the file index.
func (n *Node) Index() *index.Index {
	return n.index
}

// Transfers returns the registry of running transfers.
func (n *Node) Transfers() *file.Manager {
	return n.transfers
}

// Registry returns the prometheus registry, nil when metrics are disabled.
func (n *Node) Registry() *prometheus.Registry {
	return n.registry
}

// AddPeer records the address of a remote instance.
func (n *Node) AddPeer(identity crypto.PublicKey, address string) {
	n.transport.AddPeer(identity, address)
}

// GenerateThumbnail generates one ad-hoc thumbnail, spaced out from the
// previous one by the configured interval.
func (n *Node) GenerateThumbnail(ctx context.Context, req thumbnail.Request, kind thumbnail.Kind) (thumbnail.Outcome, error) {
	if !n.throttle.TryAcquire() {
		n.metrics.Throttled()
	}
	return n.generator.GenerateSingle(ctx, n.throttle, req, kind)
}

// GenerateLibraryThumbnails generates thumbnails for every indexed file of
// libraryID that has a content id. Per-file failures are in the results.
func (n *Node) GenerateLibraryThumbnails(ctx context.Context, libraryID uuid.UUID, regenerate bool) ([]thumbnail.BatchResult, error) {
	if _, err := n.libraries.Get(libraryID); err != nil {
		return nil, err
	}
	paths, err := n.index.List(ctx, libraryID)
	if err != nil {
		return nil, err
	}

	reqs := make([]thumbnail.Request, 0, len(paths))
	for _, p := range paths {
		if p.CasID == "" || !n.generator.Supports(p.Extension) {
			continue
		}
		reqs = append(reqs, thumbnail.Request{
			Extension: p.Extension,
			CasID:     p.CasID,
			Path:      p.FullPath(),
		})
	}
	return n.generator.GenerateBatch(ctx, reqs, thumbnail.Indexed(libraryID), regenerate), nil
}

// RequestFile fetches a resource of libraryID from peer into out.
func (n *Node) RequestFile(ctx context.Context, peer crypto.PublicKey, libraryID uuid.UUID, req p2p.Request, rng file.Range, out io.Writer, opts p2p.RequestOptions) (p2p.Report, error) {
	return n.requester.Request(ctx, peer, libraryID, req, rng, out, opts)
}

// CancelTransfer cancels a running transfer at its next block boundary.
func (n *Node) CancelTransfer(id uuid.UUID) error {
	return n.transfers.Cancel(id)
}
