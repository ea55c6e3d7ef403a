package server

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AdithyaKothamasu/Sleep-lab/internal/agent"
	"github.com/AdithyaKothamasu/Sleep-lab/internal/audit"
	cr "github.com/AdithyaKothamasu/Sleep-lab/internal/crypto"
	"github.com/AdithyaKothamasu/Sleep-lab/internal/identity"
	"github.com/AdithyaKothamasu/Sleep-lab/internal/patterns"
	"github.com/AdithyaKothamasu/Sleep-lab/internal/records"
	"github.com/AdithyaKothamasu/Sleep-lab/internal/token"
)

type Server struct {
	cfg Config

	router   *mux.Router
	codec    token.Codec
	protocol *identity.Protocol
	registry *agent.Registry
	data     *records.Service
	analyzer *patterns.Analyzer
	audit    *audit.Log
	logger   *log.Logger

	storageClient *mongo.Client

	rlChallengeIP     *keyedLimiter
	rlExchangeIP      *keyedLimiter
	rlExchangeInstall *keyedLimiter
}

// New wires the production server against Mongo-backed stores. Missing
// configuration is fatal here, before any request is served.
func New(ctx context.Context, cfg Config) (*Server, error) {
	cfg.setDefaults()
	if cfg.MongoURI == "" {
		return nil, errors.New("server: MongoURI required")
	}

	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := cli.Ping(pingCtx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	db := cli.Database(cfg.MongoDB)

	installs := identity.NewMongoInstallStore(db, cfg.InstallsCollection)
	keys, err := agent.NewMongoKeyStore(ctx, db, cfg.KeysCollection)
	if err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	recs, err := records.NewMongoStore(ctx, db, cfg.RecordsCollection)
	if err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}

	var auditSink io.Writer
	if cfg.AuditPath != "" {
		f, err := os.OpenFile(cfg.AuditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			_ = cli.Disconnect(context.Background())
			return nil, err
		}
		auditSink = f
	}

	s, err := newWithStores(cfg, installs, keys, recs, auditSink)
	if err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, err
	}
	s.storageClient = cli
	return s, nil
}

// newWithStores finishes construction against any store implementations.
// Tests use it with the memory stores.
func newWithStores(cfg Config, installs identity.InstallStore, keys agent.KeyStore, recs records.Store, auditSink io.Writer) (*Server, error) {
	cfg.setDefaults()
	if cfg.MasterSecret == "" {
		return nil, errors.New("server: MasterSecret required")
	}
	salt, err := base64.StdEncoding.DecodeString(cfg.KDFSalt)
	if err != nil {
		return nil, errors.New("server: KDFSalt must be base64")
	}

	kek, err := cr.DeriveKEK([]byte(cfg.MasterSecret), cr.ServerKDF(salt))
	if err != nil {
		return nil, err
	}
	signing, err := cr.SubKey(kek, "sleeplab/token/v1")
	if err != nil {
		return nil, err
	}
	codec, err := token.NewHMACCodec(signing, cfg.TokenIssuer)
	if err != nil {
		return nil, err
	}

	logger := log.New(os.Stdout, "[sleeplab] ", log.LstdFlags|log.Lshortfile)

	s := &Server{
		cfg:      cfg,
		codec:    codec,
		protocol: identity.NewProtocol(installs, codec, logger),
		registry: agent.NewRegistry(keys, recs, kek, logger),
		data:     records.NewService(recs, logger),
		analyzer: patterns.NewAnalyzer(cfg.AnalyzerURL, logger),
		audit:    audit.New(auditSink),
		logger:   logger,
	}

	s.rlChallengeIP = newKeyedLimiter(10, 10, time.Hour)
	s.rlExchangeIP = newKeyedLimiter(10, 10, time.Hour)
	s.rlExchangeInstall = newKeyedLimiter(5, 5, time.Hour)

	s.routes()
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Printf("panic: %v", rec)
			writeError(w, http.StatusInternalServerError, "internal error")
		}
	}()

	s.addDefaultHeaders(w)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.router.ServeHTTP(w, r)
}

func (s *Server) Handler() http.Handler { return s }

func (s *Server) Close(ctx context.Context) error {
	if s.storageClient != nil {
		return s.storageClient.Disconnect(ctx)
	}
	return nil
}

func (s *Server) addDefaultHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
}
