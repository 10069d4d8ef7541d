// Command seed idempotently populates the account pool (C2) from
// flat credential/proxy text files, the Go equivalent of
// scripts/seed_reddit_pool.py. It is a one-shot operation, not a
// long-running service: it opens the accounts database, applies
// every line it can parse, writes the proxies.json rotation file, and
// prints the resulting health report.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aniruddhsingh7901/redditharvester/internal/config"
	"github.com/aniruddhsingh7901/redditharvester/internal/platform"
	"github.com/aniruddhsingh7901/redditharvester/internal/telemetry"
	"github.com/aniruddhsingh7901/redditharvester/pkg/accountpool"
)

var whitespace = regexp.MustCompile(`\s+`)

func main() {
	accountsTxt := flag.String("accounts-txt", "scraping/reddit/redditaccount.txt", "path to the username:password:client_id:client_secret account list")
	proxiesTxt := flag.String("proxies-txt", "scraping/reddit/proxy.txt", "path to the host:port:user:pass proxy list")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: loading config: %v\n", err)
		os.Exit(1)
	}
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)

	if err := run(cfg, logger, *accountsTxt, *proxiesTxt); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger, accountsTxt, proxiesTxt string) error {
	ctx := context.Background()

	accountsDB, err := platform.Open(cfg.AccountsDB, platform.StoreAccounts)
	if err != nil {
		return fmt.Errorf("opening accounts db: %w", err)
	}
	defer accountsDB.Close()

	pool := accountpool.New(accountsDB, float64(cfg.CooldownBase))

	accountsAdded, err := seedAccounts(ctx, pool, accountsTxt, logger)
	if err != nil {
		return err
	}
	logger.Info("accounts seeded", "count", accountsAdded)

	proxies, err := parseProxiesFile(proxiesTxt, logger)
	if err != nil {
		return err
	}
	if err := writeProxiesJSON(cfg.ProxiesJSON, proxies); err != nil {
		return err
	}
	logger.Info("proxies written", "count", len(proxies), "path", cfg.ProxiesJSON)

	dbProxiesAdded := 0
	for i, p := range proxies {
		proxyID := sanitizeProxyID(fmt.Sprintf("proxy-%04d-%s", i, p.host))
		if err := pool.AddProxy(ctx, accountpool.Proxy{
			ProxyID: proxyID,
			HTTP:    p.url,
			HTTPS:   p.url,
		}); err != nil {
			logger.Warn("skipping proxy due to db error", "proxy_id", proxyID, "error", err)
			continue
		}
		dbProxiesAdded++
	}
	logger.Info("proxies mirrored into accounts db", "count", dbProxiesAdded)

	report, err := pool.HealthReport(ctx)
	if err != nil {
		return fmt.Errorf("reading health report: %w", err)
	}
	logger.Info("account health report", "ready", report.Ready, "leased", report.Leased, "quarantine", report.Quarantine, "cooling", report.Cooling)

	return nil
}

func seedAccounts(ctx context.Context, pool *accountpool.Pool, path string, logger *slog.Logger) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("accounts file not found, skipping", "path", path)
			return 0, nil
		}
		return 0, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	inserted := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		username, password, clientID, clientSecret, err := parseAccountLine(line)
		if err != nil {
			logger.Warn("skipping malformed account line", "error", err)
			continue
		}
		account := accountpool.Account{
			AccountID:    "acct-" + username,
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Username:     username,
			Password:     password,
		}
		if err := pool.AddAccount(ctx, account); err != nil {
			logger.Warn("skipping account due to db error", "account_id", account.AccountID, "error", err)
			continue
		}
		inserted++
	}
	if err := scanner.Err(); err != nil {
		return inserted, fmt.Errorf("reading %s: %w", path, err)
	}
	return inserted, nil
}

// parseAccountLine parses "username:password:client_id:client_secret",
// joining any extra colon-separated middle segments into client_id and
// stripping whitespace from it, matching parse_accounts_line's
// tolerance for stray tabs in pasted credential dumps.
func parseAccountLine(line string) (username, password, clientID, clientSecret string, err error) {
	parts := strings.Split(line, ":")
	if len(parts) < 4 {
		return "", "", "", "", fmt.Errorf("invalid account line (need 4 fields): %q", line)
	}

	username = strings.TrimSpace(parts[0])
	password = strings.TrimSpace(parts[1])
	clientSecret = strings.TrimSpace(parts[len(parts)-1])
	middle := strings.TrimSpace(strings.Join(parts[2:len(parts)-1], ":"))
	clientID = whitespace.ReplaceAllString(middle, "")

	if username == "" || password == "" || clientID == "" || clientSecret == "" {
		return "", "", "", "", fmt.Errorf("empty field in account line: %q", line)
	}
	return username, password, clientID, clientSecret, nil
}

type parsedProxy struct {
	host string
	url  string
}

func parseProxiesFile(path string, logger *slog.Logger) ([]parsedProxy, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("proxies file not found, skipping", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer file.Close()

	var proxies []parsedProxy
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		host, port, user, pass, err := parseProxyLine(line)
		if err != nil {
			logger.Warn("skipping malformed proxy line", "error", err)
			continue
		}
		proxies = append(proxies, parsedProxy{
			host: host,
			url:  fmt.Sprintf("http://%s:%s@%s:%s", user, pass, host, port),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return proxies, nil
}

// parseProxyLine parses "host:port:user:pass".
func parseProxyLine(line string) (host, port, user, pass string, err error) {
	parts := strings.Split(line, ":")
	if len(parts) != 4 {
		return "", "", "", "", fmt.Errorf("invalid proxy line (need host:port:user:pass): %q", line)
	}
	host, port, user, pass = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), strings.TrimSpace(parts[2]), strings.TrimSpace(parts[3])
	if host == "" || port == "" || user == "" || pass == "" {
		return "", "", "", "", fmt.Errorf("empty field in proxy line: %q", line)
	}
	return host, port, user, pass, nil
}

func sanitizeProxyID(id string) string {
	id = strings.ReplaceAll(id, ":", "_")
	id = strings.ReplaceAll(id, "/", "_")
	return id
}

type proxyJSONRecord struct {
	HTTP  string `json:"http"`
	HTTPS string `json:"https"`
}

func writeProxiesJSON(path string, proxies []parsedProxy) error {
	records := make([]proxyJSONRecord, 0, len(proxies))
	for _, p := range proxies {
		records = append(records, proxyJSONRecord{HTTP: p.url, HTTPS: p.url})
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling proxies: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
