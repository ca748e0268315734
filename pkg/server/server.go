package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/bastiangx/pickserve/internal/session"
	"github.com/bastiangx/pickserve/pkg/config"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// Server handles the IPC for one client over a pair of streams.
type Server struct {
	session    *session.Session
	cfg        *config.Config
	configPath string
	version    string

	dec *msgpack.Decoder

	mu  sync.Mutex
	out *bufio.Writer
	enc *msgpack.Encoder

	requestCount int
}

// NewServer creates a server using stdin/stdout for IPC.
func NewServer(resolver *session.Resolver, cfg *config.Config, configPath, version string) *Server {
	return NewServerIO(os.Stdin, os.Stdout, resolver, cfg, configPath, version)
}

// NewServerIO creates a server reading requests from r and writing frames to w.
func NewServerIO(r io.Reader, w io.Writer, resolver *session.Resolver, cfg *config.Config, configPath, version string) *Server {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	out := bufio.NewWriter(w)
	s := &Server{
		cfg:        cfg,
		configPath: configPath,
		version:    version,
		dec:        msgpack.NewDecoder(bufio.NewReader(r)),
		out:        out,
		enc:        msgpack.NewEncoder(out),
	}
	s.session = session.New(resolver, cfg.Engine.Options(), s.send)
	s.session.SetMaxQueryLen(cfg.Server.MaxQueryLen)
	return s
}

// Session returns the session driven by the server.
func (s *Server) Session() *session.Session {
	return s.session
}

// Start writes the ready frame and serves requests until the input ends.
func (s *Server) Start() error {
	log.Debugf("Starting server, session %s", s.session.ID())
	defer s.session.Close()

	s.send(Frame{Type: FrameReady, Value: s.version})

	for {
		var req Request
		if err := s.dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				log.Debugf("Input closed after %d requests", s.requestCount)
				return nil
			}
			log.Errorf("Decoding request: %v", err)
			s.sendError("", "invalid msgpack request")
			return fmt.Errorf("decode request: %w", err)
		}
		s.handleRequest(req)
	}
}

func (s *Server) handleRequest(req Request) {
	s.requestCount++
	if every := s.cfg.Server.ReloadEvery; every > 0 && s.requestCount%every == 0 {
		s.reloadConfig()
	}

	switch req.Op {
	case OpHealth:
		s.send(Frame{Type: FrameHealth, ID: req.ID, Value: s.version})
	case OpConfig:
		s.handleConfig(req)
	default:
		s.session.Handle(req)
	}
}

// handleConfig changes the engine defaults and persists them when the
// server runs with a config file.
func (s *Server) handleConfig(req Request) {
	o := req.Options
	if o == nil {
		s.sendError(req.ID, "missing 'opts'")
		return
	}
	var mode *string
	if o.MatchMode != "" {
		mode = &o.MatchMode
	}

	if s.configPath != "" {
		if err := s.cfg.Update(s.configPath, o.MinQueryLength, o.MaxResults, mode); err != nil {
			log.Errorf("Saving config: %v", err)
			s.sendError(req.ID, fmt.Sprintf("saving config: %v", err))
			return
		}
	} else {
		s.cfg.Apply(o.MinQueryLength, o.MaxResults, mode)
	}

	s.session.SetDefaults(s.cfg.Engine.Options())
	log.Debugf("Engine defaults updated: %+v", s.cfg.Engine)
	s.send(Frame{Type: session.FrameAck, ID: req.ID})
}

// reloadConfig picks up edits made to the config file while running.
func (s *Server) reloadConfig() {
	if s.configPath == "" {
		return
	}
	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		log.Warnf("Reloading config: %v", err)
		return
	}
	if cfg.Engine != s.cfg.Engine {
		log.Infof("Engine defaults changed on disk: %+v", cfg.Engine)
		s.session.SetDefaults(cfg.Engine.Options())
	}
	s.session.SetMaxQueryLen(cfg.Server.MaxQueryLen)
	s.cfg = cfg
}

// send writes one frame. It is called from background lookups too.
func (s *Server) send(f Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(f); err != nil {
		log.Errorf("Encoding frame: %v", err)
		return
	}
	if err := s.out.Flush(); err != nil {
		log.Errorf("Writing frame: %v", err)
	}
}

func (s *Server) sendError(id, message string) {
	s.send(Frame{Type: session.FrameError, ID: id, Error: message})
}
