package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/arxivdaily/enhancer/internal/mocksvc"
)

func main() {
	addr := defaultString("MOCK_SERVICES_ADDR", ":8080")
	sensitive := defaultString("MOCK_SERVICES_SENSITIVE", "")
	repos := defaultString("MOCK_SERVICES_REPOS", "")

	fs := flag.NewFlagSet("mock-services", flag.ExitOnError)
	fs.StringVar(&addr, "addr", addr, "Listen address")
	fs.StringVar(&sensitive, "sensitive", sensitive, "Comma-separated substrings the classifier flags as sensitive")
	fs.StringVar(&repos, "repos", repos, "Comma-separated owner/repo=stars entries served by the repo API")
	_ = fs.Parse(os.Args[1:])

	srv := mocksvc.New()
	srv.SetSensitiveTexts(splitCSV(sensitive)...)
	for _, entry := range splitCSV(repos) {
		name, stars, ok := strings.Cut(entry, "=")
		if !ok {
			_, _ = fmt.Fprintf(os.Stderr, "invalid --repos entry %q (want owner/repo=stars)\n", entry)
			os.Exit(2)
		}
		var n int
		if _, err := fmt.Sscanf(stars, "%d", &n); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "invalid star count in %q: %v\n", entry, err)
			os.Exit(2)
		}
		srv.SetRepoStars(strings.TrimSpace(name), n)
	}

	_, _ = fmt.Fprintf(os.Stdout, "mock-services listening on %s (chat, classify, repos)\n", addr)
	if err := http.ListenAndServe(addr, srv.Handler()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		v := strings.TrimSpace(p)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

func defaultString(envVar string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(envVar))
	if v == "" {
		return fallback
	}
	return v
}
