package cmd

import (
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/abdul-hamid-achik/httptask/packages/auth"
	authoauth2 "github.com/abdul-hamid-achik/httptask/packages/auth/oauth2"
	"github.com/abdul-hamid-achik/httptask/packages/body"
	"github.com/abdul-hamid-achik/httptask/packages/config"
	"github.com/abdul-hamid-achik/httptask/packages/engine"
	"github.com/abdul-hamid-achik/httptask/packages/history"
	"github.com/abdul-hamid-achik/httptask/packages/metrics"
	"github.com/abdul-hamid-achik/httptask/packages/retry"
	"github.com/abdul-hamid-achik/httptask/packages/transport"
	"github.com/abdul-hamid-achik/httptask/packages/validate"
)

var sendCmd = &cobra.Command{
	Use:   "send [method] <url>",
	Short: "Execute an HTTP request through the task engine",
	Long: `Execute a single HTTP request as a task: the engine drives retries,
re-authentication and cancellation and reports one terminal outcome.
The method defaults to GET (or POST when a body is given).

Examples:
  httptask send https://api.example.com/users
  httptask send POST https://api.example.com/users --json '{"name":"ada"}'
  httptask send https://api.example.com/search -q q=golang -H "Accept: application/json"
  httptask send POST https://api.example.com/upload --form kind=avatar --file image=./photo.png
  httptask send https://api.example.com/users --retries 3 --retry-delay 500ms
  httptask send https://api.example.com/users --extract "items.0.name"
  httptask send https://api.example.com/users --schema ./users.schema.json --watch`,
	Args: cobra.RangeArgs(1, 2),
	RunE: sendCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for file watch events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	configFlag      string
	headerFlags     []string
	queryFlags      []string
	dataFlag        string
	jsonFlag        string
	formFlags       []string
	fileFlags       []string
	contentTypeFlag string
	expectFlags     []string
	extractFlag     string
	schemaFlag      string

	basicFlag  string
	bearerFlag string
	apiKeyFlag string

	retriesFlag    int
	retryDelayFlag string
	timeoutFlag    string
	insecureFlag   bool
	proxyFlag      string
	noRedirectFlag bool
	idempotentFlag bool

	verboseFlag int
	noColorFlag bool
	includeFlag bool
	statsFlag   bool
	watchFlag   bool
	historyFlag string
)

func init() {
	// Request flags
	sendCmd.Flags().StringVar(&configFlag, "config", getEnvString("HTTPTASK_CONFIG", ""), "Path to config file (env: HTTPTASK_CONFIG)")
	sendCmd.Flags().StringArrayVarP(&headerFlags, "header", "H", nil, "Request header as \"Key: Value\" (repeatable)")
	sendCmd.Flags().StringArrayVarP(&queryFlags, "query", "q", nil, "Query parameter as key=value (repeatable)")
	sendCmd.Flags().StringVarP(&dataFlag, "data", "d", "", "Raw request body; @path reads the body from a file")
	sendCmd.Flags().StringVar(&jsonFlag, "json", "", "JSON request body (sets Content-Type)")
	sendCmd.Flags().StringArrayVar(&formFlags, "form", nil, "Multipart text field as name=value (repeatable)")
	sendCmd.Flags().StringArrayVar(&fileFlags, "file", nil, "Multipart file field as name=path (repeatable)")
	sendCmd.Flags().StringVar(&contentTypeFlag, "content-type", "", "Content-Type for --data bodies")
	sendCmd.Flags().StringArrayVar(&expectFlags, "expect", nil, "Acceptable response Content-Type (repeatable)")
	sendCmd.Flags().StringVar(&extractFlag, "extract", "", "Print only this JSON path from the response body")
	sendCmd.Flags().StringVar(&schemaFlag, "schema", "", "Validate the response body against a JSON Schema file")
	sendCmd.Flags().BoolVar(&idempotentFlag, "idempotent", false, "Mark the request safe to replay regardless of method")

	// Auth flags
	sendCmd.Flags().StringVar(&basicFlag, "basic", getEnvString("HTTPTASK_BASIC", ""), "Basic auth credentials as user:pass (env: HTTPTASK_BASIC)")
	sendCmd.Flags().StringVar(&bearerFlag, "bearer", getEnvString("HTTPTASK_BEARER", ""), "Bearer token (env: HTTPTASK_BEARER)")
	sendCmd.Flags().StringVar(&apiKeyFlag, "api-key", getEnvString("HTTPTASK_API_KEY", ""), "API key as Header:value (env: HTTPTASK_API_KEY)")

	// Retry and network flags
	sendCmd.Flags().IntVar(&retriesFlag, "retries", -1, "Extra attempts after a transient failure (-1: use config)")
	sendCmd.Flags().StringVar(&retryDelayFlag, "retry-delay", "", "Base backoff delay between attempts (e.g. 500ms)")
	sendCmd.Flags().StringVar(&timeoutFlag, "timeout", getEnvString("HTTPTASK_TIMEOUT", ""), "Per-attempt timeout (e.g. 30s) (env: HTTPTASK_TIMEOUT)")
	sendCmd.Flags().BoolVarP(&insecureFlag, "insecure", "k", getEnvBool("HTTPTASK_INSECURE", false), "Disable SSL certificate validation (env: HTTPTASK_INSECURE)")
	sendCmd.Flags().StringVar(&proxyFlag, "proxy", getEnvString("HTTPTASK_PROXY", ""), "Proxy URL (env: HTTPTASK_PROXY)")
	sendCmd.Flags().BoolVar(&noRedirectFlag, "no-redirect", false, "Do not follow redirects")

	// Output flags
	sendCmd.Flags().CountVarP(&verboseFlag, "verbose", "v", "Verbose output (-v shows headers, -vv engine debug)")
	sendCmd.Flags().BoolVar(&noColorFlag, "no-color", getEnvBool("HTTPTASK_NO_COLOR", false), "Disable colored output (env: HTTPTASK_NO_COLOR)")
	sendCmd.Flags().BoolVarP(&includeFlag, "include", "i", false, "Include response headers in the output")
	sendCmd.Flags().BoolVar(&statsFlag, "stats", false, "Print attempt metrics after the request")
	sendCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch body and schema files for changes and re-send")
	sendCmd.Flags().StringVar(&historyFlag, "history-db", getEnvString("HTTPTASK_HISTORY", ""), "Record the outcome in this SQLite database (env: HTTPTASK_HISTORY)")
}

// Environment variable helpers
func getEnvString(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func sendCommand(cmd *cobra.Command, args []string) error {
	if noColorFlag {
		color.NoColor = true
	}

	method, requestURL := methodAndURL(args)

	cfg, err := config.Load(configFlag)
	if err != nil {
		return err
	}

	collector := metrics.New()
	client, err := buildClient(cfg, collector)
	if err != nil {
		return err
	}

	store, err := openHistory(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupted)

	doSend := func() error {
		req, err := buildRequest(method, requestURL)
		if err != nil {
			return err
		}
		return executeOnce(client, req, store, interrupted)
	}

	if !watchFlag {
		err := doSend()
		if statsFlag {
			printStats(collector.Snapshot())
		}
		return err
	}

	files := watchedFiles()
	if len(files) == 0 {
		return fmt.Errorf("--watch needs at least one file argument (--data @file, --file, or --schema)")
	}
	return watchLoop(files, doSend, interrupted)
}

// methodAndURL resolves the positional arguments. A lone URL defaults to GET,
// or POST when a body flag was given.
func methodAndURL(args []string) (string, string) {
	if len(args) == 2 {
		return strings.ToUpper(args[0]), args[1]
	}
	if dataFlag != "" || jsonFlag != "" || len(formFlags) > 0 || len(fileFlags) > 0 {
		return "POST", args[0]
	}
	return "GET", args[0]
}

func buildClient(cfg *config.Config, collector *metrics.Metrics) (*engine.Client, error) {
	topts := cfg.TransportOptions()
	if timeoutFlag != "" {
		d, err := time.ParseDuration(timeoutFlag)
		if err != nil {
			return nil, fmt.Errorf("invalid --timeout: %w", err)
		}
		topts = append(topts, transport.WithTimeout(d))
	}
	if insecureFlag {
		topts = append(topts, transport.WithValidateSSL(false))
	}
	if proxyFlag != "" {
		topts = append(topts, transport.WithProxy(proxyFlag))
	}
	if noRedirectFlag {
		topts = append(topts, transport.WithFollowRedirects(false))
	}

	opts := cfg.ClientOptions()
	opts = append(opts,
		engine.WithTransport(transport.NewNet(topts...)),
		engine.WithRecorder(collector),
	)

	if policy := buildRetryPolicy(cfg); policy != nil {
		opts = append(opts, engine.WithRetryPolicy(policy))
	}

	mechanism, err := buildAuth(cfg)
	if err != nil {
		return nil, err
	}
	if mechanism != nil {
		opts = append(opts, engine.WithAuth(mechanism))
	}

	if verboseFlag >= 2 {
		logger := log.NewWithOptions(os.Stderr, log.Options{Level: log.DebugLevel})
		opts = append(opts, engine.WithLogger(logger))
	}

	return engine.NewClient(opts...), nil
}

func buildRetryPolicy(cfg *config.Config) engine.RetryPolicy {
	retries := cfg.Retries
	if retriesFlag >= 0 {
		retries = retriesFlag
	}
	if retries <= 0 {
		return nil
	}

	delay := time.Duration(cfg.RetryDelay) * time.Millisecond
	if retryDelayFlag != "" {
		if d, err := time.ParseDuration(retryDelayFlag); err == nil {
			delay = d
		}
	}
	if delay <= 0 {
		return retry.TransientOnly(retry.Times(retries))
	}
	return retry.TransientOnly(retry.Backoff(retries, delay))
}

// buildAuth resolves the auth mechanism: flags win over the config profile.
func buildAuth(cfg *config.Config) (engine.Auth, error) {
	switch {
	case basicFlag != "":
		user, pass, ok := strings.Cut(basicFlag, ":")
		if !ok {
			return nil, fmt.Errorf("--basic expects user:pass")
		}
		return auth.Basic{Username: user, Password: pass}, nil
	case bearerFlag != "":
		return auth.Bearer{Token: bearerFlag}, nil
	case apiKeyFlag != "":
		header, value, ok := strings.Cut(apiKeyFlag, ":")
		if !ok {
			return nil, fmt.Errorf("--api-key expects Header:value")
		}
		return auth.APIKey{Header: strings.TrimSpace(header), Value: strings.TrimSpace(value)}, nil
	}

	if cfg.Auth == nil {
		return nil, nil
	}
	switch cfg.Auth.Type {
	case "basic":
		return auth.Basic{Username: cfg.Auth.Username, Password: cfg.Auth.Password}, nil
	case "bearer":
		return auth.Bearer{Token: cfg.Auth.Token}, nil
	case "apikey":
		return auth.APIKey{Header: cfg.Auth.Header, Value: cfg.Auth.Value}, nil
	case "oauth2":
		return authoauth2.NewClientCredentials(
			cfg.Auth.TokenURL, cfg.Auth.ClientID, cfg.Auth.ClientSecret, cfg.Auth.Scopes...), nil
	default:
		return nil, fmt.Errorf("unknown auth type %q in config", cfg.Auth.Type)
	}
}

func buildRequest(method, requestURL string) (*engine.Request, error) {
	req := engine.NewRequest(method, requestURL)

	for _, h := range headerFlags {
		key, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, expected \"Key: Value\"", h)
		}
		req.SetHeader(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	for _, q := range queryFlags {
		key, value, ok := strings.Cut(q, "=")
		if !ok {
			return nil, fmt.Errorf("invalid query parameter %q, expected key=value", q)
		}
		req.SetQueryParam(key, value)
	}

	if err := applyBody(req); err != nil {
		return nil, err
	}

	if len(expectFlags) > 0 {
		req.SetExpectedContentTypes(expectFlags...)
	}
	if schemaFlag != "" {
		parse, err := validate.JSONSchemaFile(schemaFlag)
		if err != nil {
			return nil, err
		}
		req.SetParse(parse)
	}
	if idempotentFlag {
		req.SetIdempotent(true)
	}
	return req, nil
}

func applyBody(req *engine.Request) error {
	if len(formFlags) > 0 || len(fileFlags) > 0 {
		if dataFlag != "" || jsonFlag != "" {
			return fmt.Errorf("--form/--file cannot be combined with --data or --json")
		}
		form := body.NewForm()
		for _, f := range formFlags {
			name, value, ok := strings.Cut(f, "=")
			if !ok {
				return fmt.Errorf("invalid form field %q, expected name=value", f)
			}
			form.AddValue(name, value)
		}
		for _, f := range fileFlags {
			name, path, ok := strings.Cut(f, "=")
			if !ok {
				return fmt.Errorf("invalid file field %q, expected name=path", f)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading %s: %w", path, err)
			}
			contentType := mime.TypeByExtension(filepath.Ext(path))
			form.AddPart(body.NewFilePart(name, filepath.Base(path), contentType, data))
		}
		req.SetMultipartBody(form)
		return nil
	}

	if jsonFlag != "" {
		if dataFlag != "" {
			return fmt.Errorf("--json cannot be combined with --data")
		}
		req.SetRawBody("application/json", []byte(jsonFlag))
		return nil
	}

	if dataFlag != "" {
		payload := []byte(dataFlag)
		if strings.HasPrefix(dataFlag, "@") {
			data, err := os.ReadFile(dataFlag[1:])
			if err != nil {
				return fmt.Errorf("reading %s: %w", dataFlag[1:], err)
			}
			payload = data
		}
		contentType := contentTypeFlag
		if contentType == "" {
			contentType = "text/plain"
		}
		req.SetRawBody(contentType, payload)
	}
	return nil
}

// executeOnce runs one task to its terminal outcome. An interrupt cancels the
// task; the engine still delivers the terminal result.
func executeOnce(client *engine.Client, req *engine.Request, store *history.Store, interrupted <-chan os.Signal) error {
	type outcome struct {
		resp *engine.Response
		err  error
	}
	done := make(chan outcome, 1)

	task := client.Execute(req, func(t *engine.Task, resp *engine.Response, err error) {
		done <- outcome{resp: resp, err: err}
	})

	var result outcome
	select {
	case result = <-done:
	case <-interrupted:
		task.Cancel()
		result = <-done
	}

	recordHistory(store, task, result.resp, result.err)

	if result.err != nil {
		printError(task, result.err)
		return result.err
	}
	printResponse(task, result.resp)
	return nil
}

func recordHistory(store *history.Store, task *engine.Task, resp *engine.Response, err error) {
	if store == nil {
		return
	}
	entry := history.Entry{
		ID:        task.ID(),
		Method:    task.Request().Method,
		URL:       task.Request().URL,
		Attempts:  task.Attempt() + 1,
		AuthRetry: task.AuthRetried(),
	}
	if resp != nil {
		entry.Status = resp.StatusCode
		entry.DurationMs = resp.Duration.Milliseconds()
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if rerr := store.Record(entry); rerr != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", rerr)
	}
}

func openHistory(cfg *config.Config) (*history.Store, error) {
	path := cfg.HistoryPath
	if historyFlag != "" {
		path = historyFlag
	}
	if path == "" {
		return nil, nil
	}
	return history.Open(path)
}

func printResponse(task *engine.Task, resp *engine.Response) {
	statusLine := fmt.Sprintf("%d %s", resp.StatusCode, statusText(resp.StatusCode))
	switch {
	case resp.IsSuccess():
		color.Green(statusLine)
	case resp.IsRedirect():
		color.Yellow(statusLine)
	default:
		color.Red(statusLine)
	}

	gray := color.New(color.FgHiBlack)
	gray.Printf("%s  attempts=%d", resp.Duration.Round(time.Millisecond), task.Attempt()+1)
	if task.AuthRetried() {
		gray.Printf("  auth-retry=1")
	}
	gray.Println()

	if includeFlag || verboseFlag >= 1 {
		for key, values := range resp.Headers {
			for _, v := range values {
				fmt.Printf("%s: %s\n", color.CyanString(key), v)
			}
		}
		fmt.Println()
	}

	if extractFlag != "" {
		fmt.Println(gjson.GetBytes(resp.Body, extractFlag).String())
		return
	}
	if len(resp.Body) > 0 {
		fmt.Println(resp.BodyString())
	}
}

func printError(task *engine.Task, err error) {
	switch {
	case errors.Is(err, engine.ErrCanceled):
		color.Yellow("canceled after %d attempt(s)", task.Attempt()+1)
	default:
		color.Red("error: %v", err)
	}
}

func printStats(snap metrics.Snapshot) {
	gray := color.New(color.FgHiBlack)
	gray.Printf("attempts=%d failed=%d retries=%d auth-retries=%d p50=%s p95=%s p99=%s max=%s\n",
		snap.TotalAttempts, snap.FailedAttempts, snap.GenericRetries, snap.AuthRetries,
		snap.P50, snap.P95, snap.P99, snap.Max)
}

func statusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown"
}

// watchedFiles lists the local files the request depends on.
func watchedFiles() []string {
	var files []string
	if strings.HasPrefix(dataFlag, "@") {
		files = append(files, dataFlag[1:])
	}
	for _, f := range fileFlags {
		if _, path, ok := strings.Cut(f, "="); ok {
			files = append(files, path)
		}
	}
	if schemaFlag != "" {
		files = append(files, schemaFlag)
	}
	return files
}

// watchLoop re-sends the request whenever one of the files changes, until the
// process is interrupted.
func watchLoop(files []string, doSend func() error, interrupted <-chan os.Signal) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	watched := make(map[string]bool, len(files))
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		watched[abs] = true
		// Watch the directory: editors often replace files on save.
		if err := watcher.Add(filepath.Dir(abs)); err != nil {
			return fmt.Errorf("cannot watch %s: %w", f, err)
		}
	}

	if err := doSend(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	color.New(color.FgHiBlack).Println("watching for changes, press Ctrl-C to stop")

	var debounce *time.Timer
	resend := make(chan struct{}, 1)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(event.Name)
			if !watched[abs] || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case resend <- struct{}{}:
				default:
				}
			})
		case <-resend:
			if err := doSend(); err != nil {
				fmt.Fprintf(os.Stderr, "%v\n", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		case <-interrupted:
			return nil
		}
	}
}
