// Command dial places an outbound call whose media stream joins a running
// assistant.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/Mercy2112/ai-voice-assistant/pkg/configutil"
	"github.com/Mercy2112/ai-voice-assistant/pkg/transports"
	twiliotransport "github.com/Mercy2112/ai-voice-assistant/pkg/transports/twilio"
)

type transportSection struct {
	Transports struct {
		Provider string              `mapstructure:"provider"`
		Settings configutil.Settings `mapstructure:"settings"`
	} `mapstructure:"transports"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	from := flag.String("from", "", "caller id; defaults to transports.settings.from_number")
	to := flag.String("to", "", "number to call")
	objective := flag.String("objective", "", "objective for this call")
	voiceURL := flag.String("voice_url", "", "override the voice webhook URL")
	sendDigits := flag.String("send_digits", "", "DTMF digits to send once answered")
	timeout := flag.Int("timeout", 0, "seconds to let the call ring")
	flag.Parse()
	if *to == "" {
		fmt.Println("usage: dial -to=+15551234567 [-from=...] [-objective=...] [-config=...]")
		os.Exit(1)
	}

	cfg, err := loadTwilioConfig(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	schema := configutil.Schema{
		Required:     []string{"account_sid", "auth_token", "public_url"},
		Optional:     configutil.Keys(twiliotransport.Config{}),
		AllowUnknown: true,
	}
	var settings twiliotransport.Config
	if err := configutil.Decode(configutil.ExpandEnv(cfg.Transports.Settings), schema, &settings); err != nil {
		fmt.Println("settings error:", err)
		os.Exit(1)
	}

	dialer := twiliotransport.NewDialer(settings)
	url := *voiceURL
	if url == "" {
		url = dialer.VoiceURL(*objective)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	callSID, err := dialer.DialWithOptions(ctx, *to, *from, url, transports.DialOptions{
		SendDigits: *sendDigits,
		Timeout:    *timeout,
	})
	if err != nil {
		fmt.Println("call error:", err)
		os.Exit(1)
	}
	fmt.Println("call_sid:", callSID)
}

func loadTwilioConfig(path string) (transportSection, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return transportSection{}, err
	}
	var cfg transportSection
	if err := v.Unmarshal(&cfg); err != nil {
		return transportSection{}, err
	}
	if cfg.Transports.Provider != "" && cfg.Transports.Provider != "twilio" {
		return transportSection{}, fmt.Errorf("transports.provider is %q, dial needs twilio", cfg.Transports.Provider)
	}
	return cfg, nil
}
