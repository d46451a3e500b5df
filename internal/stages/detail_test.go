package stages_test

import (
	"context"
	"errors"
	"testing"

	"folio/internal/catalog"
	"folio/internal/logging"
	"folio/internal/services"
	"folio/internal/services/source"
	"folio/internal/stages"
	"folio/internal/testsupport"
)

func TestDetailFillsItemMetadata(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "B-100", "dune", "")

	src := &stubSource{detail: &source.Detail{
		ExternalID: "B-100",
		Title:      "Dune",
		Author:     "Frank Herbert",
		Language:   "English",
		Year:       1965,
		Publisher:  "Chilton Books",
		Format:     "EPUB",
	}}
	fetcher := stages.NewDetailFetcherWithDependencies(cfg, store, logging.NewNop(), src, &stubShelf{})

	if err := fetcher.Process(context.Background(), item); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if src.calls != 1 {
		t.Fatalf("expected one lookup, got %d", src.calls)
	}
	if item.Title != "Dune" {
		t.Errorf("title = %q, want Dune", item.Title)
	}
	if item.Author != "Frank Herbert" {
		t.Errorf("author = %q, want Frank Herbert", item.Author)
	}
	if item.Language != "en" {
		t.Errorf("language = %q, want normalized en", item.Language)
	}
	if item.Year != 1965 {
		t.Errorf("year = %d, want 1965", item.Year)
	}
	if item.Publisher != "Chilton Books" {
		t.Errorf("publisher = %q", item.Publisher)
	}
	if item.Format != "epub" {
		t.Errorf("format = %q, want lowercased epub", item.Format)
	}
}

func TestDetailKeepsExistingFieldsWhenLookupIsSparse(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "B-101", "Dune Messiah", "Frank Herbert")
	item.Year = 1969

	src := &stubSource{detail: &source.Detail{ExternalID: "B-101", Language: "fr"}}
	fetcher := stages.NewDetailFetcherWithDependencies(cfg, store, logging.NewNop(), src, &stubShelf{})

	if err := fetcher.Process(context.Background(), item); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if item.Title != "Dune Messiah" || item.Author != "Frank Herbert" || item.Year != 1969 {
		t.Errorf("sparse lookup overwrote existing metadata: %+v", item)
	}
	if item.Language != "fr" {
		t.Errorf("language = %q, want fr", item.Language)
	}
}

func TestDetailSkipsWhenShelfHasItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "B-102", "Dune", "Frank Herbert")

	src := &stubSource{detail: &source.Detail{ExternalID: "B-102", Title: "Dune"}}
	fetcher := stages.NewDetailFetcherWithDependencies(cfg, store, logging.NewNop(), src, &stubShelf{exists: true})

	err := fetcher.Process(context.Background(), item)
	if !errors.Is(err, services.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestDetailContinuesWhenShelfCheckFails(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "B-103", "Dune", "Frank Herbert")

	src := &stubSource{detail: &source.Detail{ExternalID: "B-103", Title: "Dune"}}
	shelfSvc := &stubShelf{existsErr: errors.New("shelf offline")}
	fetcher := stages.NewDetailFetcherWithDependencies(cfg, store, logging.NewNop(), src, shelfSvc)

	if err := fetcher.Process(context.Background(), item); err != nil {
		t.Fatalf("Process should tolerate shelf check failure: %v", err)
	}
}

func TestDetailPropagatesLookupFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	item := testsupport.NewItem(t, store, "B-104", "Dune", "Frank Herbert")

	src := &stubSource{err: services.Wrap(services.ErrNotFound, "detail", "fetch detail", "No such book", nil)}
	fetcher := stages.NewDetailFetcherWithDependencies(cfg, store, logging.NewNop(), src, &stubShelf{})

	err := fetcher.Process(context.Background(), item)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDetailCanProcess(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	fetcher := stages.NewDetailFetcherWithDependencies(cfg, store, logging.NewNop(), &stubSource{}, &stubShelf{})

	item := testsupport.NewItem(t, store, "B-105", "Dune", "Frank Herbert")
	if !fetcher.CanProcess(item) {
		t.Errorf("new item should be processable")
	}

	item = testsupport.AdvanceItem(t, store, item, catalog.StatusDetailFetching)
	if !fetcher.CanProcess(item) {
		t.Errorf("detail_fetching item should be processable")
	}

	item = testsupport.AdvanceItem(t, store, item, catalog.StatusDetailComplete)
	if fetcher.CanProcess(item) {
		t.Errorf("detail_complete item should not be processable")
	}
	if fetcher.CanProcess(nil) {
		t.Errorf("nil item should not be processable")
	}
}

func TestDetailHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	fetcher := stages.NewDetailFetcherWithDependencies(cfg, store, logging.NewNop(), &stubSource{}, &stubShelf{})

	if health := fetcher.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("expected healthy, got %+v", health)
	}

	cfg.Source.BaseURL = ""
	if health := fetcher.HealthCheck(context.Background()); health.Ready {
		t.Fatalf("expected unhealthy without source URL")
	}
}
