package main

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cuemby/ecowatt/pkg/batch"
	"github.com/cuemby/ecowatt/pkg/command"
	"github.com/cuemby/ecowatt/pkg/compression"
	"github.com/cuemby/ecowatt/pkg/config"
	"github.com/cuemby/ecowatt/pkg/envelope"
	"github.com/cuemby/ecowatt/pkg/faultrecovery"
	"github.com/cuemby/ecowatt/pkg/firmware"
	"github.com/cuemby/ecowatt/pkg/health"
	"github.com/cuemby/ecowatt/pkg/log"
	"github.com/cuemby/ecowatt/pkg/metrics"
	"github.com/cuemby/ecowatt/pkg/netclient"
	"github.com/cuemby/ecowatt/pkg/polling"
	"github.com/cuemby/ecowatt/pkg/protocol"
	"github.com/cuemby/ecowatt/pkg/reconciler"
	"github.com/cuemby/ecowatt/pkg/storage"
	"github.com/cuemby/ecowatt/pkg/supervisor"
	"github.com/cuemby/ecowatt/pkg/types"
	"github.com/cuemby/ecowatt/pkg/uploader"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ecowatt",
	Short: "EcoWatt - solar inverter telemetry device firmware",
	Long: `EcoWatt is the on-device agent for a grid-tied solar inverter:
it polls the inverter's register bus, compresses and securely uploads
telemetry, executes remote commands, reconciles configuration from the
cloud, and applies signed firmware updates.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"ecowatt version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("config", "/etc/ecowatt/bootstrap.yaml", "Path to the bootstrap configuration file")
	rootCmd.PersistentFlags().String("data-dir", "", "Override the persistent store directory")

	cobra.OnInitialize(initLogging)

	runCmd.Flags().String("metrics-addr", "", "Address to serve /metrics, /health, /ready on (disabled if empty)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	firmwareCmd.AddCommand(firmwareStatusCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(firmwareCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func loadBootstrap(cmd *cobra.Command) (*config.Bootstrap, error) {
	configPath, _ := cmd.Flags().GetString("config")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	b, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	b.Override("", nil, dataDir)
	return b, nil
}

// ---------------------------------------------------------------------
// run
// ---------------------------------------------------------------------

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the EcoWatt device daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		bootstrap, err := loadBootstrap(cmd)
		if err != nil {
			return err
		}
		if bootstrap.RegisterDevicePath == "" {
			return fmt.Errorf("register_device_path must be set in the bootstrap file to run the daemon")
		}

		logger := log.WithComponent("main")
		logger.Info().Str("device_id", bootstrap.DeviceID).Msg("starting ecowatt daemon")

		daemon, err := buildDaemon(bootstrap)
		if err != nil {
			return fmt.Errorf("build daemon: %w", err)
		}
		defer daemon.store.Close()

		if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
			daemon.serveMetrics(addr)
		}

		daemon.runPostBootDiagnostics()

		daemon.supervisor.Start()
		logger.Info().Int("tasks", len(daemon.supervisor.Tasks)).Msg("task supervisor started")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh

		logger.Info().Msg("shutdown signal received, stopping supervisor")
		daemon.supervisor.Stop()
		daemon.collector.Stop()
		return nil
	},
}

// daemon bundles every long-lived component run wires together, so the
// supervisor's task closures can share them without a grab-bag of
// loose variables.
type daemon struct {
	bootstrap   *config.Bootstrap
	store       storage.Store
	configStore *config.DeviceConfigStore
	catalog     map[string]types.Register
	selector    *polling.RegisterSelector
	client      *netclient.Client
	carrier     protocol.Carrier
	recoverer   *faultrecovery.Recoverer
	poller      *polling.Poller
	queue       *polling.SampleQueue
	compression *compression.Engine
	ring        *batch.CompressedRing
	uploader    *uploader.Uploader
	dispatcher  *command.Dispatcher
	reconciler  *reconciler.Reconciler
	firmware    *firmware.Engine
	applier     firmware.Applier
	monitor     *supervisor.DeadlineMonitor
	supervisor  *supervisor.Supervisor
	collector   *metrics.Collector
}

func buildDaemon(bootstrap *config.Bootstrap) (*daemon, error) {
	store, err := storage.NewBoltStore(bootstrap.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open persistent store: %w", err)
	}

	configStore := config.NewDeviceConfigStore(store)
	cfg, err := configStore.Get()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("load device config: %w", err)
	}

	catalog := config.DefaultRegisterCatalog()
	selector := polling.NewRegisterSelector(catalog, cfg.ActiveRegisterSet)

	hmacKey, err := hex.DecodeString(bootstrap.HMACKeyHex)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("decode hmac_key_hex: %w", err)
	}
	var aesKey []byte
	if bootstrap.AESKeyHex != "" {
		aesKey, err = hex.DecodeString(bootstrap.AESKeyHex)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("decode aes_key_hex: %w", err)
		}
	}
	var iv [aes.BlockSize]byte
	if bootstrap.AESIVHex != "" {
		raw, err := hex.DecodeString(bootstrap.AESIVHex)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("decode aes_iv_hex: %w", err)
		}
		if len(raw) != aes.BlockSize {
			store.Close()
			return nil, fmt.Errorf("aes_iv_hex must decode to %d bytes, got %d", aes.BlockSize, len(raw))
		}
		copy(iv[:], raw)
	}
	env, err := envelope.New(store, hmacKey, aesKey, iv, bootstrap.EncryptPayload)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build security envelope: %w", err)
	}

	client := netclient.New(bootstrap.CloudBaseURL)

	conn, err := os.OpenFile(bootstrap.RegisterDevicePath, os.O_RDWR, 0)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open register device %q: %w", bootstrap.RegisterDevicePath, err)
	}
	carrier := &protocol.FileCarrier{Conn: conn, ReadBuffer: protocol.MaxResponseBytes}

	recoverer := &faultrecovery.Recoverer{
		BaseDelay:  500 * time.Millisecond,
		MaxBackoff: 8 * time.Second,
		Reporter:   &faultrecovery.NetReporter{Client: client},
		DeviceID:   bootstrap.DeviceID,
		Logger:     log.WithTaskID("fault-recovery"),
	}

	queue := polling.NewSampleQueue(polling.DefaultQueueCapacity)
	poller := &polling.Poller{
		Slave:     bootstrap.SlaveAddress,
		Carrier:   carrier,
		Recoverer: recoverer,
		Queue:     queue,
		Selection: selector.Selection,
		Timeout:   2 * time.Second,
		Logger:    log.WithTaskID(string(supervisor.TaskSensorPoll)),
	}

	allRegisters := make([]types.Register, 0, len(catalog))
	for _, r := range catalog {
		allRegisters = append(allRegisters, r)
	}
	compressionEngine := compression.NewEngine(allRegisters, log.WithTaskID(string(supervisor.TaskCompression)))

	ring := batch.NewCompressedRing(64)
	up := &uploader.Uploader{
		Client:   client,
		Envelope: env,
		Ring:     ring,
		DeviceID: bootstrap.DeviceID,
		Logger:   log.WithTaskID(string(supervisor.TaskUpload)),
	}

	dispatcher := &command.Dispatcher{
		Client:                    client,
		Carrier:                   carrier,
		Recoverer:                 recoverer,
		Slave:                     bootstrap.SlaveAddress,
		DeviceID:                  bootstrap.DeviceID,
		Registers:                 catalog,
		PowerSetpointRegisterID:   "power-setpoint",
		PowerStatsRegisterID:      "output-power",
		PeripheralStatsRegisterID: "heatsink-temperature",
		Logger:                    log.WithTaskID(string(supervisor.TaskCommand)),
	}

	recon := &reconciler.Reconciler{
		Client:    client,
		Store:     store,
		DeviceID:  bootstrap.DeviceID,
		Catalog:   catalog,
		Notifiers: []reconciler.Notifier{selector},
		Logger:    log.WithTaskID(string(supervisor.TaskConfig)),
	}

	applier := &firmware.SlotApplier{Store: store}
	firmwareEngine := &firmware.Engine{
		Store:     store,
		Client:    client,
		Applier:   applier,
		DeviceID:  bootstrap.DeviceID,
		UpdateKey: nil,
		PublicKey: nil,
		Logger:    log.WithTaskID(string(supervisor.TaskFirmware)),
	}
	if bootstrap.FirmwareUpdateKeyHex != "" {
		key, err := hex.DecodeString(bootstrap.FirmwareUpdateKeyHex)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("decode firmware_update_key_hex: %w", err)
		}
		firmwareEngine.UpdateKey = key
	}
	if bootstrap.FirmwarePublicKeyPath != "" {
		pub, err := loadRSAPublicKey(bootstrap.FirmwarePublicKeyPath)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("load firmware_public_key_path: %w", err)
		}
		firmwareEngine.PublicKey = pub
	}

	monitor := supervisor.NewDeadlineMonitor(nil)

	collector := metrics.NewCollector(compressionEngine, store)
	collector.QueueDepth = queue.Len
	collector.RingDepth = ring.Size
	collector.FirmwareState = func() (types.FirmwareUpdateState, bool) {
		var state types.FirmwareUpdateState
		found, ferr := store.GetJSON(storage.NamespaceFirmware, storage.KeyFirmwareState, &state)
		return state, ferr == nil && found
	}
	collector.Start()

	d := &daemon{
		bootstrap:   bootstrap,
		store:       store,
		configStore: configStore,
		catalog:     catalog,
		selector:    selector,
		client:      client,
		carrier:     carrier,
		recoverer:   recoverer,
		poller:      poller,
		queue:       queue,
		compression: compressionEngine,
		ring:        ring,
		uploader:    up,
		dispatcher:  dispatcher,
		reconciler:  recon,
		firmware:    firmwareEngine,
		applier:     applier,
		monitor:     monitor,
		collector:   collector,
	}

	sup := supervisor.NewSupervisor(d.tasks(cfg), monitor, log.WithComponent("supervisor"))
	firmwareEngine.Quiesce = sup.SuspendAll
	firmwareEngine.Resume = sup.ResumeAll
	d.supervisor = sup

	return d, nil
}

func (d *daemon) tasks(cfg types.DeviceConfig) []supervisor.Task {
	logger := log.WithComponent("tasks")

	return []supervisor.Task{
		{
			Name: supervisor.TaskSensorPoll, Core: supervisor.CoreSensor,
			Period: cfg.PollPeriod, Deadline: 2 * time.Second,
			Run: func(ctx context.Context) error {
				deadline, _ := ctx.Deadline()
				return d.poller.Tick(ctx, deadline)
			},
		},
		{
			Name: supervisor.TaskUpload, Core: supervisor.CoreNetwork,
			Period: cfg.UploadPeriod, Deadline: 5 * time.Second,
			Run: d.uploader.Run,
		},
		{
			Name: supervisor.TaskCompression, Core: supervisor.CoreSensor,
			Period: cfg.PollPeriod, Deadline: 2 * time.Second,
			Run: d.runCompressionTick,
		},
		{
			Name: supervisor.TaskCommand, Core: supervisor.CoreNetwork,
			Period: cfg.CommandPollPeriod, Deadline: 3 * time.Second,
			Run: d.runCommandTick,
		},
		{
			Name: supervisor.TaskConfig, Core: supervisor.CoreNetwork,
			Period: cfg.ConfigPollPeriod, Deadline: 3 * time.Second,
			Run: func(ctx context.Context) error {
				_, err := d.reconciler.Tick(ctx)
				return err
			},
		},
		{
			Name: supervisor.TaskStatistics, Core: supervisor.CoreNetwork,
			Period: 30 * time.Second, Deadline: 2 * time.Second,
			Run: d.runStatisticsTick,
		},
		{
			Name: supervisor.TaskPowerReport, Core: supervisor.CoreNetwork,
			Period: powerReportPeriod(cfg), Deadline: 3 * time.Second,
			Run: d.runPowerReportTick,
		},
		{
			Name: supervisor.TaskFirmware, Core: supervisor.CoreNetwork,
			Period: cfg.FirmwareCheckPeriod, Deadline: 10 * time.Second,
			Run: func(ctx context.Context) error {
				_, err := d.firmware.RunUpdateCycle(ctx)
				return err
			},
		},
		{
			Name: supervisor.TaskWatchdog, Core: supervisor.CoreNetwork,
			Period: 10 * time.Second, Deadline: time.Second,
			Run: func(ctx context.Context) error {
				if d.monitor.ShouldRestart() {
					logger.Error().
						Int("lifetime_misses", d.monitor.LifetimeMisses()).
						Int("network_misses", d.monitor.NetworkMisses()).
						Msg("deadline miss threshold exceeded, requesting platform reset")
					os.Exit(1)
				}
				return nil
			},
		},
	}
}

func powerReportPeriod(cfg types.DeviceConfig) time.Duration {
	if cfg.PowerManagement.EnergyReportPeriod > 0 {
		return cfg.PowerManagement.EnergyReportPeriod
	}
	return 5 * time.Minute
}

// runCompressionTick drains whatever samples the polling pipeline has
// queued into a SampleBatch and hands it to the compression engine,
// pushing the resulting packet onto the upload ring.
func (d *daemon) runCompressionTick(ctx context.Context) error {
	b, err := batch.NewSampleBatch(batch.DefaultCapacity)
	if err != nil {
		return fmt.Errorf("open sample batch: %w", err)
	}

	for !b.IsFull() {
		sample, ok := d.queue.Pop()
		if !ok {
			break
		}
		if err := b.Accept(sample); err != nil {
			break
		}
	}
	if b.Len() == 0 {
		return nil
	}

	packet, err := d.compression.Compress(b)
	if err != nil {
		return fmt.Errorf("compress batch: %w", err)
	}
	if d.ring.Push(packet) {
		log.WithTaskID(string(supervisor.TaskCompression)).Warn().Msg("compressed ring full, oldest packet discarded")
	}
	return nil
}

func (d *daemon) runCommandTick(ctx context.Context) error {
	commands, err := d.dispatcher.Poll(ctx)
	if err != nil {
		return err
	}
	for _, cmd := range commands {
		_ = d.dispatcher.Dispatch(ctx, cmd)
	}
	return nil
}

// runStatisticsTick persists the command dispatcher's executed/succeeded/
// failed tally into the diagnostics namespace, where `ecowatt status`
// reads it back.
func (d *daemon) runStatisticsTick(ctx context.Context) error {
	tally := d.dispatcher.Tally()
	return d.store.PutJSON(storage.NamespaceDiagnostics, "command-tally", tally)
}

type wirePowerReport struct {
	ReportID  string `json:"report_id"`
	DeviceID  string `json:"device_id"`
	WattsNow  uint16 `json:"watts_now"`
	Timestamp string `json:"timestamp_utc"`
}

// runPowerReportTick reads the live power-stats register and posts an
// energy report, tagged with a fresh correlation ID so the cloud side can
// de-duplicate retried deliveries.
func (d *daemon) runPowerReportTick(ctx context.Context) error {
	enabled, err := d.store.GetBool(storage.NamespacePower, storage.KeyPowerEnabled, false)
	if err != nil {
		return err
	}
	if !enabled {
		return nil
	}

	reg, ok := d.catalog["output-power"]
	if !ok {
		return fmt.Errorf("power report: output-power register not in catalog")
	}
	_, _, frame, err := protocol.BuildReadFrame(d.dispatcher.Slave, []protocol.RegisterRef{{Address: reg.Address}})
	if err != nil {
		return err
	}
	resp, err := protocol.Exchange(ctx, d.carrier, frame, netclient.CommandTimeout)
	if err != nil {
		return err
	}
	result := protocol.ValidateResponse(resp, d.dispatcher.Slave, protocol.FuncReadRegisters)
	var watts uint16
	if result.Status == protocol.StatusOK && len(result.Data) >= 2 {
		watts = uint16(result.Data[0])<<8 | uint16(result.Data[1])
	}

	body, err := json.Marshal(wirePowerReport{
		ReportID:  uuid.New().String(),
		DeviceID:  d.bootstrap.DeviceID,
		WattsNow:  watts,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	resp2, err := d.client.Do(ctx, http.MethodPost, "/power/"+d.bootstrap.DeviceID+"/report",
		bytes.NewReader(body), map[string]string{"Content-Type": "application/json"})
	if err != nil {
		return err
	}
	defer resp2.Body.Close()
	return nil
}

// runPostBootDiagnostics only runs when the previous boot's firmware
// engine left a pending-diagnostics marker set — i.e. this boot is the
// first one on a slot a firmware update just applied. A normal boot with
// no pending update skips diagnostics entirely, so a transient
// cloud-reachability blip can never flip an already-stable slot.
func (d *daemon) runPostBootDiagnostics() {
	pending, err := d.store.GetBool(storage.NamespaceFirmware, storage.KeyPendingDiagnostics, false)
	if err != nil {
		log.WithComponent("health").Error().Err(err).Msg("failed to read pending-diagnostics marker")
		return
	}
	if !pending {
		return
	}

	logger := log.WithComponent("health")
	runner := &health.Runner{
		Checkers: []health.NamedChecker{
			{Name: "cloud", Checker: health.NewHTTPChecker(d.bootstrap.CloudBaseURL)},
			{Name: "store", Checker: health.NewStoreChecker(d.store)},
		},
		Applier: d.applier,
		Logger:  logger,
		OnRollback: func() {
			state, err := d.firmwareStateForRollback()
			if err != nil {
				logger.Error().Err(err).Msg("failed to load firmware state for rollback bookkeeping")
				return
			}
			state.Phase = types.FirmwareRollback
			if err := d.store.PutJSON(storage.NamespaceFirmware, storage.KeyFirmwareState, state); err != nil {
				logger.Error().Err(err).Msg("failed to persist rollback phase")
			}
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if _, err := runner.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("post-boot diagnostics failed")
	}
	if err := d.store.PutBool(storage.NamespaceFirmware, storage.KeyPendingDiagnostics, false); err != nil {
		logger.Error().Err(err).Msg("failed to clear pending-diagnostics marker")
	}
}

func (d *daemon) firmwareStateForRollback() (types.FirmwareUpdateState, error) {
	var state types.FirmwareUpdateState
	if _, err := d.store.GetJSON(storage.NamespaceFirmware, storage.KeyFirmwareState, &state); err != nil {
		return types.FirmwareUpdateState{}, err
	}
	return state, nil
}

func (d *daemon) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())

	metrics.RegisterComponent("store", true, "")
	metrics.RegisterComponent("uploader", true, "")
	metrics.RegisterComponent("supervisor", true, "")

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithComponent("metrics").Error().Err(err).Msg("metrics server stopped")
		}
	}()
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return rsaPub, nil
}

// ---------------------------------------------------------------------
// status
// ---------------------------------------------------------------------

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the device's current configuration and runtime counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		bootstrap, err := loadBootstrap(cmd)
		if err != nil {
			return err
		}
		store, err := storage.NewBoltStore(bootstrap.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		cfg, err := config.NewDeviceConfigStore(store).Get()
		if err != nil {
			return err
		}

		fmt.Printf("✓ Device: %s\n", bootstrap.DeviceID)
		fmt.Printf("  Poll period:     %s\n", cfg.PollPeriod)
		fmt.Printf("  Upload period:   %s\n", cfg.UploadPeriod)
		fmt.Printf("  Active registers: %v\n", cfg.ActiveRegisterSet)
		fmt.Printf("  Compression:     %v\n", cfg.CompressionEnabled)

		var firmwareState types.FirmwareUpdateState
		if found, _ := store.GetJSON(storage.NamespaceFirmware, storage.KeyFirmwareState, &firmwareState); found {
			fmt.Printf("  Firmware phase:  %s\n", firmwareState.Phase)
		}

		counter, _ := store.GetUint32(storage.NamespaceSecurity, storage.KeySecurityCounter, 0)
		fmt.Printf("  Security counter: %d\n", counter)

		var tally command.Counters
		if found, _ := store.GetJSON(storage.NamespaceDiagnostics, "command-tally", &tally); found {
			fmt.Printf("  Commands:        %d executed, %d succeeded, %d failed\n", tally.Executed, tally.Succeeded, tally.Failed)
		}
		return nil
	},
}

// ---------------------------------------------------------------------
// config show / set
// ---------------------------------------------------------------------

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or override the live device configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current DeviceConfig as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		bootstrap, err := loadBootstrap(cmd)
		if err != nil {
			return err
		}
		store, err := storage.NewBoltStore(bootstrap.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		cfg, err := config.NewDeviceConfigStore(store).Get()
		if err != nil {
			return err
		}
		enc, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(enc))
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Override one DeviceConfig field for bench testing",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bootstrap, err := loadBootstrap(cmd)
		if err != nil {
			return err
		}
		store, err := storage.NewBoltStore(bootstrap.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		configStore := config.NewDeviceConfigStore(store)
		cfg, err := configStore.Get()
		if err != nil {
			return err
		}

		if err := applyLocalOverride(&cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := configStore.Put(cfg); err != nil {
			return err
		}
		fmt.Printf("✓ %s set to %s\n", args[0], args[1])
		return nil
	},
}

func applyLocalOverride(cfg *types.DeviceConfig, key, value string) error {
	switch key {
	case "poll-period":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		if d < time.Second || d > time.Hour {
			return fmt.Errorf("poll-period out of range [1s, 1h]")
		}
		cfg.PollPeriod = d
	case "upload-period":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		if d < 10*time.Second || d > time.Hour {
			return fmt.Errorf("upload-period out of range [10s, 1h]")
		}
		cfg.UploadPeriod = d
	case "compression-enabled":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.CompressionEnabled = v
	default:
		return fmt.Errorf("unrecognized config key %q", key)
	}
	return nil
}

// ---------------------------------------------------------------------
// firmware status
// ---------------------------------------------------------------------

var firmwareCmd = &cobra.Command{
	Use:   "firmware",
	Short: "Inspect the firmware update state machine",
}

var firmwareStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current FirmwareUpdateState phase",
	RunE: func(cmd *cobra.Command, args []string) error {
		bootstrap, err := loadBootstrap(cmd)
		if err != nil {
			return err
		}
		store, err := storage.NewBoltStore(bootstrap.DataDir)
		if err != nil {
			return err
		}
		defer store.Close()

		var state types.FirmwareUpdateState
		found, err := store.GetJSON(storage.NamespaceFirmware, storage.KeyFirmwareState, &state)
		if err != nil {
			return err
		}
		if !found {
			fmt.Println("✓ No firmware update has ever run on this device")
			return nil
		}
		fmt.Printf("✓ Firmware phase: %s\n", state.Phase)
		if state.Manifest != nil {
			fmt.Printf("  Target version: %s\n", state.Manifest.Version)
		}
		fmt.Printf("  Chunks received: %d\n", state.ChunksReceived)
		fmt.Printf("  Bytes received:  %d\n", state.BytesReceived)
		if state.ErrorDescription != "" {
			fmt.Printf("  Last error: %s\n", state.ErrorDescription)
		}
		return nil
	},
}
