// Binary tui is a console editor for the bot's config file.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"cobabot-go/internal/config"
)

const defaultConfigPath = "internal/config/config.yaml"

type session struct {
	in    *bufio.Reader
	path  string
	cfg   *config.Config
	dirty bool
}

type screen struct {
	key   string
	title string
	run   func(*session)
}

var screens = []screen{
	{"s", "Summary", (*session).summary},
	{"r", "Sizing and exits", (*session).editRisk},
	{"i", "Signal thresholds", (*session).editSignals},
	{"c", "Loop cadence", (*session).editCadence},
	{"w", "Write config", (*session).write},
	{"l", "Reload from disk", (*session).reload},
	{"p", "Run paper bot", (*session).runPaper},
}

func main() {
	s := &session{in: bufio.NewReader(os.Stdin), path: locateConfig()}
	cfg, err := config.Load(s.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", s.path, err)
		os.Exit(1)
	}
	s.cfg = cfg

	for {
		s.menu()
		key := strings.ToLower(s.line())
		if key == "q" {
			if s.dirty && !s.confirm("Discard unsaved changes?") {
				continue
			}
			return
		}
		if sc, ok := lookup(key); ok {
			sc.run(s)
		} else {
			fmt.Println("unknown option")
		}
	}
}

func lookup(key string) (screen, bool) {
	for _, sc := range screens {
		if sc.key == key {
			return sc, true
		}
	}
	return screen{}, false
}

func (s *session) menu() {
	mark := ""
	if s.dirty {
		mark = " (unsaved)"
	}
	fmt.Printf("\n== cobabot: %s%s ==\n", s.path, mark)
	for _, sc := range screens {
		fmt.Printf("  [%s] %s\n", sc.key, sc.title)
	}
	fmt.Print("  [q] Quit\n> ")
}

func (s *session) summary() {
	c := s.cfg
	fmt.Printf("\n%s %s via %s, last %d bars\n", c.Exchange.Symbol, c.Exchange.Timeframe, c.Exchange.Provider, c.Exchange.BarLimit)
	fmt.Printf("buy size %.0f | SL %.2f%% | TP %.2f%% | %d trades/day\n",
		c.Risk.InvestmentNotional, c.Risk.StopLossFraction*100, c.Risk.TakeProfitFraction*100, c.Risk.MaxDailyTrades)
	fmt.Printf("RSI %d below %.0f / above %.0f | EMA %d/%d | BB %d x %.1f | MACD %d/%d/%d\n",
		c.Strategy.RSIPeriod, c.Strategy.RSIOversold, c.Strategy.RSIOverbought,
		c.Strategy.EMAShortPeriod, c.Strategy.EMALongPeriod,
		c.Strategy.BollingerPeriod, c.Strategy.BollingerStdDev,
		c.Strategy.MACDFastPeriod, c.Strategy.MACDSlowPeriod, c.Strategy.MACDSignalPeriod)
	fmt.Printf("poll %ds | %d attempts, %ds apart | telegram %v\n",
		c.Loop.PollIntervalSeconds, c.Loop.FetchRetryCount, c.Loop.FetchRetryDelaySeconds, c.Notify.TelegramEnabled())
	fmt.Printf("paper cash %.0f, slippage %.1f bps\n", c.Paper.StartingCash, c.Paper.SlippageBps)
}

func (s *session) editRisk() {
	r := &s.cfg.Risk
	s.float("Buy size (quote)", &r.InvestmentNotional)
	s.percent("Stop loss %", &r.StopLossFraction)
	s.percent("Take profit %", &r.TakeProfitFraction)
	s.integer("Trades per day", &r.MaxDailyTrades)
	s.float("Paper starting cash", &s.cfg.Paper.StartingCash)
	s.check()
}

func (s *session) editSignals() {
	st := &s.cfg.Strategy
	s.float("RSI oversold", &st.RSIOversold)
	s.float("RSI overbought", &st.RSIOverbought)
	s.integer("EMA short", &st.EMAShortPeriod)
	s.integer("EMA long", &st.EMALongPeriod)
	s.check()
}

func (s *session) editCadence() {
	l := &s.cfg.Loop
	s.integer("Poll seconds", &l.PollIntervalSeconds)
	s.integer("Fetch attempts", &l.FetchRetryCount)
	s.integer("Retry delay seconds", &l.FetchRetryDelaySeconds)
	s.integer("Bars per fetch", &s.cfg.Exchange.BarLimit)
	s.check()
}

// check reports validation problems right after an edit; write refuses them.
func (s *session) check() {
	if err := s.cfg.Validate(); err != nil {
		fmt.Printf("! %v\n", err)
	}
}

func (s *session) write() {
	if err := s.cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "not saved: %v\n", err)
		return
	}
	if err := config.Save(s.path, s.cfg); err != nil {
		fmt.Fprintf(os.Stderr, "save failed: %v\n", err)
		return
	}
	s.dirty = false
	fmt.Println("saved")
}

func (s *session) reload() {
	cfg, err := config.Load(s.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reload failed: %v\n", err)
		return
	}
	s.cfg, s.dirty = cfg, false
	fmt.Println("reloaded")
}

func (s *session) runPaper() {
	if s.dirty {
		fmt.Println("the paper bot reads the file on disk; write first to use your edits")
	}
	args := []string{"run", "./cmd/paper", "-config", s.path}
	if s.confirm("Use synthetic bars?") {
		args = append(args, "-stub")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := exec.CommandContext(ctx, "go", args...)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	if err := cmd.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start bot: %v\n", err)
		return
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	fmt.Println("paper bot running; press ENTER to stop")
	stop := make(chan struct{})
	go func() {
		_, _ = s.in.ReadString('\n')
		close(stop)
	}()
	select {
	case err := <-exited:
		fmt.Printf("bot exited: %v; press ENTER to return\n", err)
		<-stop
	case <-stop:
		cancel()
		select {
		case <-exited:
		case <-time.After(2 * time.Second):
		}
	}
}

func (s *session) line() string {
	text, _ := s.in.ReadString('\n')
	return strings.TrimSpace(text)
}

func (s *session) confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	return strings.EqualFold(s.line(), "y")
}

func (s *session) ask(label, current string) (string, bool) {
	fmt.Printf("%s (%s): ", label, current)
	text := s.line()
	return text, text != ""
}

func (s *session) float(label string, dst *float64) {
	text, ok := s.ask(label, strconv.FormatFloat(*dst, 'f', -1, 64))
	if !ok {
		return
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		fmt.Println("  not a number, unchanged")
		return
	}
	*dst, s.dirty = v, true
}

func (s *session) percent(label string, dst *float64) {
	pct := *dst * 100
	before := s.dirty
	s.dirty = false
	s.float(label, &pct)
	if s.dirty {
		*dst = pct / 100
	}
	s.dirty = s.dirty || before
}

func (s *session) integer(label string, dst *int) {
	text, ok := s.ask(label, strconv.Itoa(*dst))
	if !ok {
		return
	}
	v, err := strconv.Atoi(text)
	if err != nil {
		fmt.Println("  not a whole number, unchanged")
		return
	}
	*dst, s.dirty = v, true
}

func locateConfig() string {
	if p := os.Getenv("COBABOT_CONFIG"); p != "" {
		return filepath.Clean(p)
	}
	return filepath.Clean(defaultConfigPath)
}
