package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/AdithyaKothamasu/Sleep-lab/internal/server"
)

func main() {
	cfg := server.Config{
		Addr:          os.Getenv("SLEEPLAB_ADDR"),
		PublicBaseURL: os.Getenv("SLEEPLAB_BASE_URL"),
		MongoURI:      os.Getenv("SLEEPLAB_MONGO_URI"),
		MongoDB:       os.Getenv("SLEEPLAB_MONGO_DB"),
		MasterSecret:  os.Getenv("SLEEPLAB_MASTER_SECRET"),
		KDFSalt:       os.Getenv("SLEEPLAB_KDF_SALT"),
		TokenIssuer:   os.Getenv("SLEEPLAB_TOKEN_ISSUER"),
		AnalyzerURL:   os.Getenv("SLEEPLAB_ANALYZER_URL"),
		AuditPath:     os.Getenv("SLEEPLAB_AUDIT_LOG"),
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	s, err := server.New(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("sleeplabd: %v", err)
	}

	log.Printf("sleeplabd listening on %s", cfg.Addr)
	log.Fatal(http.ListenAndServe(cfg.Addr, s.Handler()))
}
