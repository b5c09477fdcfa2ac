package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/StoreStation/vibeshitcraft-core/pkg/auth"
	"github.com/StoreStation/vibeshitcraft-core/pkg/cache"
	"github.com/StoreStation/vibeshitcraft-core/pkg/config"
	"github.com/StoreStation/vibeshitcraft-core/pkg/gen"
	"github.com/StoreStation/vibeshitcraft-core/pkg/protocol"
	"github.com/StoreStation/vibeshitcraft-core/pkg/region"
	"github.com/StoreStation/vibeshitcraft-core/pkg/world"
)

// defaultMaxPlayers is reported in the Status response; spec.md's
// configuration surface (§6) does not pin a max-players knob, so this
// stays a Server-internal constant rather than a config field.
const defaultMaxPlayers = 20

// defaultMOTD is the Status response's description; like max players,
// spec.md's configuration surface (§6) does not pin a MOTD knob.
const defaultMOTD = "A VibeShitCraft world-streaming core"

// gracefulShutdownGrace bounds how long Stop waits for in-flight
// sessions to close on their own (after it has already closed the
// listener) before it force-closes the registered sessions and
// proceeds to flush, per spec.md §5's "drains outstanding connection
// tasks with a grace period."
const gracefulShutdownGrace = 5 * time.Second

// Server owns the accept loop and every long-lived subsystem: the
// chunk cache (C6), generation pipeline (C7), region store (C8), the
// block/biome registry and dimension, and the login keypair/verifier
// (C4). It replaces the teacher's Server struct, which held a flat
// world.World and player/chest/entity maps inline — those are gone
// along with the 1.8 gameplay they supported (see DESIGN.md).
type Server struct {
	cfg config.Config
	log *zap.Logger

	registry  *protocol.Registry
	dimension *world.Dimension
	generator *world.Generator

	cache    *cache.Cache
	pipeline *gen.Pipeline
	region   *region.Store

	keyPair  *auth.KeyPair
	verifier auth.Verifier

	listener net.Listener

	mu       sync.Mutex
	sessions map[*Session]struct{}

	handlers map[int32]PacketHandler

	nextEID    int32
	maxPlayers int

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Server from cfg, wiring C6 (cache) on top of C8
// (region store, read path) falling back to C7 (generation), per
// spec.md §4.6's "on miss, returns a future that resolves when C8
// loads from disk or C7 generates it."
func New(cfg config.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := protocol.DefaultBlockRegistry()
	dim := world.Overworld
	generator := world.NewGenerator(cfg.Seed, registry, dim)

	regionStore, err := region.Open(region.Config{
		Dir:       cfg.WorldDirectory,
		Dimension: dim,
		Registry:  registry,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("server: open region store: %w", err)
	}

	pipeline := gen.New(gen.Config{
		Generator: generator,
		Workers:   cfg.WorkerPoolSize,
		Logger:    logger,
	})

	loader := regionStore.AsLoader(pipeline.Generate)
	chunkCache := cache.New(cache.Config{
		MaxBytes: cfg.CacheMaxBytes,
		Loader:   loader,
		Logger:   logger,
	})

	keyPair, err := auth.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("server: generate login keypair: %w", err)
	}

	// online_mode's external session-server call (spec.md §4.4 step 5,
	// "calls the external session-verifier") is a pluggable
	// auth.Verifier; no HTTPS verifier ships in this build (there is no
	// HTTP client library anywhere in the retrieval pack to ground one
	// on, see DESIGN.md), so both modes resolve to OfflineVerifier for
	// now and online_mode only gates the RSA/AES handshake itself.
	verifier := auth.Verifier(auth.OfflineVerifier{})

	return &Server{
		cfg:        cfg,
		log:        logger,
		registry:   registry,
		dimension:  dim,
		generator:  generator,
		cache:      chunkCache,
		pipeline:   pipeline,
		region:     regionStore,
		keyPair:    keyPair,
		verifier:   verifier,
		sessions:   make(map[*Session]struct{}),
		handlers:   make(map[int32]PacketHandler),
		maxPlayers: defaultMaxPlayers,
		stopCh:     make(chan struct{}),
	}, nil
}

// RegisterHandler wires a gameplay callback for a Play-state packet
// id, per spec.md §6's "on_packet(session, decoded_packet)" external
// interface. Only one handler per id; registering twice overwrites.
func (s *Server) RegisterHandler(packetID int32, h PacketHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[packetID] = h
}

func (s *Server) handler(packetID int32) (PacketHandler, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handlers[packetID]
	return h, ok
}

// Start binds the listener and begins accepting connections; it
// returns once the listener is bound, with acceptLoop running in the
// background, mirroring the teacher's Start.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.BindAddress)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.BindAddress, err)
	}
	s.listener = ln
	s.log.Info("listening", zap.String("address", s.cfg.BindAddress))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.log.Warn("accept failed", zap.Error(err))
				continue
			}
		}
		sess := newSession(s, conn)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.Serve()
		}()
	}
}

func (s *Server) addSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess] = struct{}{}
}

func (s *Server) removeSession(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sess)
}

func (s *Server) playerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) nextEntityID() int32 {
	return atomic.AddInt32(&s.nextEID, 1)
}

// Stop drains connections, flushes dirty chunks, and releases every
// subsystem, per spec.md §5's shutdown contract: "a single
// cancellation signal aborts the accept loop, drains outstanding
// connection tasks with a grace period, invokes cache.flush(), and
// waits for the region-write tasks to complete before exiting."
func (s *Server) Stop() error {
	close(s.stopCh)
	if s.listener != nil {
		s.listener.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(gracefulShutdownGrace):
		s.log.Warn("shutdown grace period elapsed with sessions still open")
	}

	s.mu.Lock()
	for sess := range s.sessions {
		sess.transport.Close()
	}
	s.mu.Unlock()

	if err := s.region.FlushAll(s.cache.Dirty()); err != nil {
		s.log.Error("final flush failed", zap.Error(err))
	}
	s.pipeline.Close()
	s.cache.Close()
	return s.region.Close()
}
