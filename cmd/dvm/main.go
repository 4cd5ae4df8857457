package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/joho/godotenv"

	dvm "github.com/dvmnet/go-dvm"
	"github.com/dvmnet/go-dvm/common/dedup"
	"github.com/dvmnet/go-dvm/common/loggers"
	"github.com/dvmnet/go-dvm/common/metrics"
	"github.com/dvmnet/go-dvm/common/notifs"
	"github.com/dvmnet/go-dvm/common/relay"
	"github.com/dvmnet/go-dvm/models"
	"github.com/dvmnet/go-dvm/services"
	"github.com/dvmnet/go-dvm/signer"
)

type discoverCmd struct {
	ServiceId string        `arg:"-s,--service" help:"service id to discover workers for"`
	Budget    time.Duration `arg:"-b,--budget" help:"how long to sweep the relays"`
}

type submitCmd struct {
	Dvm         string        `arg:"positional,required" help:"worker pubkey (64 hex chars)"`
	Url         string        `arg:"-u,--url,required" help:"source video url"`
	Output      string        `arg:"-o,--output" default:"mp4" help:"output mode: mp4 or hls"`
	Resolution  string        `arg:"-r,--resolution" help:"target resolution, e.g. 720p"`
	Resolutions []string      `arg:"--stream-resolution,separate" help:"hls stream resolutions, repeatable"`
	Wait        time.Duration `arg:"-w,--wait" default:"10m" help:"how long to wait for the result"`
}

type adminCmd struct {
	Dvm     string        `arg:"positional,required" help:"worker pubkey (64 hex chars)"`
	Method  string        `arg:"positional,required" help:"admin method name"`
	Params  string        `arg:"-p,--params" help:"method params as a JSON object"`
	Timeout time.Duration `arg:"-t,--timeout" help:"per-call timeout"`
}

type args struct {
	Discover *discoverCmd `arg:"subcommand:discover" help:"list active workers for a service"`
	Submit   *submitCmd   `arg:"subcommand:submit" help:"submit a transcoding job and follow it"`
	Admin    *adminCmd    `arg:"subcommand:admin" help:"send one admin RPC command"`
	Relays   []string     `arg:"--relay,separate" help:"relay url, repeatable; overrides the env relay set"`
}

func main() {
	// A missing .env is fine; deployed environments inject config directly.
	_ = godotenv.Load()

	var cliArgs args
	parser := arg.MustParse(&cliArgs)
	if parser.Subcommand() == nil {
		parser.Fail("missing subcommand")
	}

	logger := loggers.NewLogger()
	metricService, err := metrics.NewMetricService(logger)
	if err != nil {
		log.Fatalf("main: error creating metric service: %v", err)
	}
	notifier, err := notifs.NewDiscordHandler(logger)
	if err != nil {
		log.Fatalf("main: error creating discord handler: %v", err)
	}

	eventSigner, err := loadSigner()
	if err != nil {
		log.Fatalf("main: error loading signer: %v", err)
	}

	pool := relay.NewPool(logger)
	defer pool.Close()
	store, err := dedup.NewStore(models.DefaultDedupCacheSize)
	if err != nil {
		log.Fatalf("main: error creating dedup store: %v", err)
	}

	relays := cliArgs.Relays
	if len(relays) == 0 {
		relays = envRelays()
	}
	publisher := services.NewEventPublisher(logger, pool, eventSigner, metricService, relays)
	subscriber := services.NewDedupSubscriber(logger, pool, store, metricService)
	envelope := services.NewEnvelope(logger, eventSigner)

	ctx := context.Background()
	switch {
	case cliArgs.Discover != nil:
		err = runDiscover(ctx, logger, subscriber, metricService, relays, cliArgs.Discover)
	case cliArgs.Submit != nil:
		jobService := services.NewJobService(logger, publisher, subscriber, envelope, metricService, notifier)
		err = runSubmit(ctx, jobService, cliArgs.Submit)
	case cliArgs.Admin != nil:
		adminService := services.NewAdminService(logger, eventSigner, publisher, subscriber, envelope, metricService)
		defer adminService.Close()
		err = runAdmin(ctx, adminService, relays, cliArgs.Admin)
	}
	metricService.Shutdown(ctx)
	if err != nil {
		log.Fatalf("main: %v", err)
	}
}

// loadSigner uses the configured secret key, or a throwaway key for read-only
// commands like discovery.
func loadSigner() (models.Signer, error) {
	if hexKey := os.Getenv(dvm.Env_SecretKey); len(hexKey) > 0 {
		return signer.NewLocalSigner(hexKey)
	}
	return signer.NewRandomSigner()
}

func envRelays() []string {
	configured := os.Getenv(dvm.Env_Relays)
	if len(configured) == 0 {
		return models.DefaultRelays
	}
	relays := make([]string, 0)
	for _, url := range strings.Split(configured, ",") {
		if url = strings.TrimSpace(url); len(url) > 0 {
			relays = append(relays, url)
		}
	}
	return relays
}

func runDiscover(ctx context.Context, logger models.Logger, subscriber *services.DedupSubscriber, metricService models.MetricService, relays []string, cmd *discoverCmd) error {
	serviceId := cmd.ServiceId
	if len(serviceId) == 0 {
		serviceId = os.Getenv(dvm.Env_ServiceId)
	}
	discoveryService := services.NewDiscoveryService(logger, subscriber, metricService, serviceId, relays)
	announcements, err := discoveryService.Discover(ctx, cmd.Budget)
	if err != nil {
		return err
	}
	if len(announcements) == 0 {
		fmt.Println("no active workers found")
		return nil
	}
	for _, announcement := range announcements {
		fmt.Printf("%s  last seen %s  %s\n",
			announcement.Pubkey,
			time.Unix(announcement.LastSeen, 0).Format(time.RFC3339),
			announcement.Name)
	}
	return nil
}

func runSubmit(ctx context.Context, jobService *services.JobService, cmd *submitCmd) error {
	params := &models.JobParams{
		VideoUrl:          cmd.Url,
		Output:            models.OutputMode(cmd.Output),
		Resolution:        cmd.Resolution,
		StreamResolutions: cmd.Resolutions,
	}
	submission, err := jobService.Submit(ctx, cmd.Dvm, params, nil)
	if err != nil {
		return err
	}
	fmt.Printf("submitted job %s\n", submission.RequestId)

	resolved := make(chan error, 1)
	finish := func(err error) {
		select {
		case resolved <- err:
		default:
		}
	}
	handle, err := jobService.Track(ctx, submission.RequestId, cmd.Dvm, nil, func(event services.JobEvent) {
		switch {
		case event.Status != nil:
			fmt.Printf("status: %s %s\n", event.Status.Status, event.Status.Message)
			if event.Status.Terminal() {
				finish(fmt.Errorf("job failed: %s", event.Status.Message))
			}
		case event.Result != nil:
			encoded, _ := json.MarshalIndent(event.Result, "", "  ")
			fmt.Println(string(encoded))
			finish(nil)
		}
	})
	if err != nil {
		return err
	}
	defer handle.Cancel()

	select {
	case err = <-resolved:
		return err
	case <-time.After(cmd.Wait):
		return fmt.Errorf("no result within %s", cmd.Wait)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runAdmin(ctx context.Context, adminService *services.AdminService, relays []string, cmd *adminCmd) error {
	var params map[string]any
	if len(cmd.Params) > 0 {
		if err := json.Unmarshal([]byte(cmd.Params), &params); err != nil {
			return fmt.Errorf("parsing params: %w", err)
		}
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = envRpcTimeout()
	}
	result, err := adminService.Call(ctx, cmd.Dvm, cmd.Method, params, relays, timeout)
	if err != nil {
		return err
	}
	fmt.Println(string(result))
	return nil
}

func envRpcTimeout() time.Duration {
	if configured := os.Getenv(dvm.Env_RpcTimeout); len(configured) > 0 {
		if parsed, err := time.ParseDuration(configured); err == nil {
			return parsed
		}
	}
	return models.DefaultRpcTimeout
}
