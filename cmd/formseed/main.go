// Command formseed creates the live form from a YAML document. Like the admin
// API, it replaces every existing form and deletes their submissions.
//
//	formseed -f apply.yaml
//	formseed -token admin -subject ops@example.org
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lojf/formdesk/internal/audit"
	"github.com/lojf/formdesk/internal/auth"
	"github.com/lojf/formdesk/internal/cache"
	"github.com/lojf/formdesk/internal/config"
	"github.com/lojf/formdesk/internal/db"
	"github.com/lojf/formdesk/internal/logger"
	"github.com/lojf/formdesk/internal/services"
)

func main() {
	var (
		file    = flag.String("f", "", "YAML form document to install as the live form")
		role    = flag.String("token", "", "print a bearer token for this role (admin or super_admin) and exit")
		subject = flag.String("subject", "formseed", "subject of the printed token and actor of the seed")
		ttl     = flag.Duration("ttl", 24*time.Hour, "lifetime of the printed token")
	)
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(config.GetEnv("LOG_MODE", "dev", nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	cfg := config.Load(log)

	if *role != "" {
		tok, err := auth.NewGate(cfg.JWTSecret, log).Issue(*subject, auth.Role(*role), *ttl)
		if err != nil {
			log.Fatal("issue token failed", "error", err)
		}
		fmt.Println(tok)
		return
	}
	if *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	in, err := loadDocument(*file)
	if err != nil {
		log.Fatal("read form document failed", "file", *file, "error", err)
	}
	if err := db.Init(cfg.DBDriver, cfg.DBDSN, log); err != nil {
		log.Fatal("db init failed", "error", err)
	}

	// the running server's cache expires on its own TTL
	forms := services.NewForms(db.Conn(), audit.NewDBSink(db.Conn()), cache.NewMemory(), 0, log)
	form, warnings, err := forms.Create(context.Background(), audit.Actor{ID: *subject}, in)
	if ce, ok := services.IsConfigError(err); ok {
		for _, p := range ce {
			log.Error("form configuration problem", "field", p.Field, "reason", p.Reason, "message", p.Message)
		}
		os.Exit(1)
	}
	if err != nil {
		log.Fatal("create form failed", "error", err)
	}
	for _, p := range warnings {
		log.Warn("form configuration warning", "field", p.Field, "reason", p.Reason, "message", p.Message)
	}
	log.Info("live form installed", "form_id", form.ID, "slug", form.Slug, "fields", len(form.Fields))
}

// loadDocument reads a YAML form document. The document uses the same keys
// as the admin API's JSON body, so it is converted to JSON and decoded with
// the API's types.
func loadDocument(path string) (services.FormInput, error) {
	var in services.FormInput
	b, err := os.ReadFile(path)
	if err != nil {
		return in, err
	}
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return in, fmt.Errorf("parse yaml: %w", err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return in, fmt.Errorf("convert to json: %w", err)
	}
	if err := json.Unmarshal(js, &in); err != nil {
		return in, fmt.Errorf("decode form: %w", err)
	}
	return in, nil
}
