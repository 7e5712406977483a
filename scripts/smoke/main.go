// Command smoke probes a running deployment and fails when any critical
// endpoint misbehaves. Meant to run right after a rollout.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type check struct {
	Method     string `json:"method"`
	Path       string `json:"path"`
	WantStatus int    `json:"want_status"`
	Auth       bool   `json:"auth"`
	Critical   bool   `json:"critical"`
}

type checksFile struct {
	Checks []check `json:"checks"`
}

type outcome struct {
	Check    check
	Status   int
	Pass     bool
	Error    error
	Duration time.Duration
}

func main() {
	var (
		base       string
		checksPath string
		email      string
		password   string
		timeout    time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&checksPath, "checks", filepath.Join("scripts", "smoke", "checks.json"), "Path to JSON checks file")
	flag.StringVar(&email, "email", os.Getenv("SMOKE_EMAIL"), "Login email for authenticated checks")
	flag.StringVar(&password, "password", os.Getenv("SMOKE_PASSWORD"), "Login password for authenticated checks")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	checks, err := loadChecks(checksPath)
	if err != nil {
		log.Fatalf("failed to load checks: %v", err)
	}

	client := &http.Client{Timeout: timeout}

	token := ""
	if needsAuth(checks) {
		token, err = login(client, base, email, password)
		if err != nil {
			log.Fatalf("login for authenticated checks failed: %v", err)
		}
	}

	var (
		outcomes []outcome
		breaking int
		soft     int
	)
	for _, c := range checks {
		out := runCheck(client, base, token, c)
		if !out.Pass {
			if c.Critical {
				breaking++
			} else {
				soft++
			}
		}
		outcomes = append(outcomes, out)
	}

	printReport(outcomes)

	fmt.Printf("Critical failures: %d, Soft failures: %d\n", breaking, soft)
	if breaking > 0 {
		os.Exit(1)
	}
}

func loadChecks(path string) ([]check, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg checksFile
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Checks) == 0 {
		return nil, fmt.Errorf("no checks defined in %s", path)
	}
	return cfg.Checks, nil
}

func needsAuth(checks []check) bool {
	for _, c := range checks {
		if c.Auth {
			return true
		}
	}
	return false
}

func login(client *http.Client, base, email, password string) (string, error) {
	if email == "" || password == "" {
		return "", fmt.Errorf("email and password are required (flags or SMOKE_EMAIL/SMOKE_PASSWORD)")
	}

	payload, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	resp, err := client.Post(strings.TrimRight(base, "/")+"/api/v1/auth/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned %d", resp.StatusCode)
	}

	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", err
	}
	if envelope.Data.AccessToken == "" {
		return "", fmt.Errorf("login response carried no access token")
	}
	return envelope.Data.AccessToken, nil
}

func runCheck(client *http.Client, base, token string, c check) outcome {
	out := outcome{Check: c}

	method := strings.ToUpper(strings.TrimSpace(c.Method))
	if method == "" {
		method = http.MethodGet
	}
	path := c.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	req, err := http.NewRequest(method, strings.TrimRight(base, "/")+path, nil)
	if err != nil {
		out.Error = err
		return out
	}
	if c.Auth {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	out.Duration = time.Since(start)
	if err != nil {
		out.Error = err
		return out
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	out.Status = resp.StatusCode
	want := c.WantStatus
	if want == 0 {
		want = http.StatusOK
	}
	out.Pass = out.Status == want
	return out
}

func printReport(results []outcome) {
	fmt.Println("Smoke Report")
	fmt.Println("============")
	for _, res := range results {
		status := "PASS"
		if res.Error != nil {
			status = "ERROR"
		} else if !res.Pass {
			status = "FAIL"
		}
		fmt.Printf("[%s] %s %s\n", status, res.Check.Method, res.Check.Path)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		fmt.Printf("  Status: %d (%s) | Critical: %t\n", res.Status, res.Duration, res.Check.Critical)
	}
}
