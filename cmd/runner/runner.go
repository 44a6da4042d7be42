package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/lyrebird-bot/lyrebird/cmd/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// RestartPrefix is the worker's restart-signal line protocol: a stdout line
// of exactly this prefix followed by the transfer-file path. Every other
// line is forwarded unmodified.
const RestartPrefix = "!restart,path="

type Params struct {
	Config string `short:"c" optional:"true" help:"Path to the runner config file." default:"config.toml"`
}

func Cmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:         "runner",
		Short:       "Supervise the bot worker and restart it on request",
		ParamEnrich: common.DefaultParamEnricher(),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			if err := Run(cmd.Context(), params); err != nil {
				_, _ = fmt.Fprintf(os.Stderr, "runner: %v\n", err)
				os.Exit(1)
			}
		},
	}.ToCobra()
}

// Config is the runner's static configuration, read once at startup.
type Config struct {
	Mode    string   `mapstructure:"mode"`
	OwnerID uint64   `mapstructure:"owner_id"`
	Debug   *Profile `mapstructure:"debug"`
	Release *Profile `mapstructure:"release"`
}

type Profile struct {
	Token      string `mapstructure:"token"`
	BinaryPath string `mapstructure:"binary_path"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if _, err := cfg.ActiveProfile(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) ActiveProfile() (*Profile, error) {
	var p *Profile
	switch c.Mode {
	case "debug":
		p = c.Debug
	case "release":
		p = c.Release
	default:
		return nil, fmt.Errorf("invalid mode %q", c.Mode)
	}
	if p == nil {
		return nil, fmt.Errorf("no profile configured for mode %q", c.Mode)
	}
	if p.Token == "" {
		return nil, fmt.Errorf("missing token for mode %q", c.Mode)
	}
	return p, nil
}

// BinaryPath resolves the worker binary, defaulting to a mode-named path.
func (c *Config) BinaryPath() string {
	p, err := c.ActiveProfile()
	if err == nil && p.BinaryPath != "" {
		return p.BinaryPath
	}
	return filepath.Join("bin", c.Mode, "lyrebird")
}

// workerCommand builds the next worker launch. recoverPath is empty on a
// cold start and carries the transfer-file path after a restart.
func (c *Config) workerCommand(ctx context.Context, recoverPath string) *exec.Cmd {
	p, _ := c.ActiveProfile()
	cmd := exec.CommandContext(ctx, c.BinaryPath(), "worker")
	cmd.Env = append(os.Environ(),
		"DISCORD_TOKEN="+p.Token,
		"BOT_OWNER_ID="+strconv.FormatUint(c.OwnerID, 10),
		"IS_RUN_BY_RUNNER=1",
	)
	if recoverPath != "" {
		cmd.Env = append(cmd.Env, "RESTART_RECOVER_PATH="+recoverPath)
	}
	cmd.Stderr = os.Stderr
	return cmd
}

func Run(ctx context.Context, params *Params) error {
	cfg, err := LoadConfig(params.Config)
	if err != nil {
		return err
	}
	return Supervise(ctx, cfg, os.Stdout)
}

// Supervise spawns the worker and relaunches it every time it emits a
// restart-signal line. A worker exiting without a restart signal ends the
// loop; there is deliberately no crash-loop protection here.
func Supervise(ctx context.Context, cfg *Config, out io.Writer) error {
	recoverPath := ""
	for {
		cmd := cfg.workerCommand(ctx, recoverPath)
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			return fmt.Errorf("failed to open worker stdout: %w", err)
		}
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start worker %s: %w", cfg.BinaryPath(), err)
		}

		path, err := ScanForRestart(stdout, out)
		if err != nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
			return fmt.Errorf("failed to read worker output: %w", err)
		}
		if path == "" {
			// Worker finished on its own.
			return cmd.Wait()
		}

		if err := cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill worker for restart: %w", err)
		}
		_ = cmd.Wait()
		recoverPath = path
	}
}

// ScanForRestart forwards the worker's output line by line until a
// restart-signal line appears, returning the transfer-file path it carries.
// Returns "" on EOF without a signal.
func ScanForRestart(r io.Reader, out io.Writer) (string, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if path, ok := strings.CutPrefix(line, RestartPrefix); ok {
			return path, nil
		}
		fmt.Fprintln(out, line)
	}
	return "", sc.Err()
}
