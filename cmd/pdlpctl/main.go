package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/pdlp/internal/logging"
	"github.com/danmuck/pdlp/internal/protocol"
	"github.com/danmuck/pdlp/internal/protocol/frame"
	"github.com/danmuck/pdlp/internal/protocol/schema"
	"github.com/danmuck/pdlp/internal/protocol/tlv"
	"github.com/danmuck/pdlp/internal/services"
	"github.com/danmuck/pdlp/internal/transport/wslink"
)

type options struct {
	url     string
	maxUnit int
	timeout time.Duration
}

// decodedMessage is one printed message.
type decodedMessage struct {
	Service   string         `json:"service"`
	MessageID uint16         `json:"message_id"`
	Params    []decodedParam `json:"params"`
}

type decodedParam struct {
	Tag   uint8  `json:"tag"`
	Value string `json:"value"`
}

func main() {
	logging.ConfigureRuntime()
	var opts options
	flag.StringVar(&opts.url, "url", "ws://127.0.0.1:9300/link", "pdlpd link endpoint")
	flag.IntVar(&opts.maxUnit, "max-unit", frame.DefaultMaxUnit, "segment size, header included")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Second, "response timeout")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, opts, flag.Arg(0), flag.Args()[1:]); err != nil {
		fatalf("%v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: pdlpctl [flags] <command> [args]

commands:
  info                          get device information
  sensor -type NAME             get one sensor reading
  subscribe -type NAME [-off]   toggle sensor notifications, then watch
  setting                       get setting information
  names -type N                 get setting names (0 led color, 1 led pattern, 2 vibration)
  notify -category N -id N      push a notification
  watch                         print device indications

flags:
`)
	flag.PrintDefaults()
}

func run(ctx context.Context, opts options, cmd string, args []string) error {
	dialCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	backoff := wslink.DefaultBackoff()
	backoff.MaxAttempts = 5
	c, err := wslink.DialRetry(dialCtx, opts.url, opts.maxUnit, backoff)
	if err != nil {
		return err
	}
	defer c.Close()

	switch cmd {
	case "info":
		msg := tlv.AppendMessageHeader(nil, protocol.ServicePropertyInfo, schema.PISMsgGetDeviceInformation, 0)
		return request(ctx, c, opts, msg)
	case "sensor":
		fs := flag.NewFlagSet("sensor", flag.ExitOnError)
		name := fs.String("type", "temperature", "sensor type")
		_ = fs.Parse(args)
		t, err := services.ParseSensorType(*name)
		if err != nil {
			return err
		}
		msg := tlv.AppendMessageHeader(nil, protocol.ServiceSensorInfo, schema.SISMsgGetSensorInfo, 1)
		msg = tlv.AppendUint8(msg, schema.SISTagSensorType, uint8(t))
		return request(ctx, c, opts, msg)
	case "subscribe":
		fs := flag.NewFlagSet("subscribe", flag.ExitOnError)
		name := fs.String("type", "temperature", "sensor type")
		off := fs.Bool("off", false, "disable notifications")
		threshold := fs.Uint("threshold", 1, "motion threshold per axis")
		_ = fs.Parse(args)
		t, err := services.ParseSensorType(*name)
		if err != nil {
			return err
		}
		status := services.SensorStatusOn
		if *off {
			status = services.SensorStatusOff
		}
		count := uint8(2)
		if t.IsMotion() {
			count = 5
		}
		msg := tlv.AppendMessageHeader(nil, protocol.ServiceSensorInfo, schema.SISMsgSetNotifySensorInfo, count)
		msg = tlv.AppendUint8(msg, schema.SISTagSensorType, uint8(t))
		msg = tlv.AppendUint8(msg, schema.SISTagStatus, uint8(status))
		if t.IsMotion() {
			msg = tlv.AppendUint32(msg, schema.SISTagXThreshold, uint32(*threshold))
			msg = tlv.AppendUint32(msg, schema.SISTagYThreshold, uint32(*threshold))
			msg = tlv.AppendUint32(msg, schema.SISTagZThreshold, uint32(*threshold))
		}
		if err := request(ctx, c, opts, msg); err != nil || *off {
			return err
		}
		return watch(ctx, c)
	case "setting":
		msg := tlv.AppendMessageHeader(nil, protocol.ServiceSettingOperation, schema.SOSMsgGetSettingInformation, 0)
		return request(ctx, c, opts, msg)
	case "names":
		fs := flag.NewFlagSet("names", flag.ExitOnError)
		kind := fs.Uint("type", 0, "setting name type")
		_ = fs.Parse(args)
		msg := tlv.AppendMessageHeader(nil, protocol.ServiceSettingOperation, schema.SOSMsgGetSettingName, 1)
		msg = tlv.AppendUint8(msg, schema.SOSTagSettingNameType, uint8(*kind))
		return request(ctx, c, opts, msg)
	case "notify":
		fs := flag.NewFlagSet("notify", flag.ExitOnError)
		category := fs.Uint("category", uint(schema.CategoryMail), "notify category bit")
		id := fs.Uint("id", 1, "unique id")
		params := fs.Uint("params", 0, "parameter id list")
		_ = fs.Parse(args)
		msg := tlv.AppendMessageHeader(nil, protocol.ServiceNotification, schema.NSMsgNotifyInformation, 3)
		msg = tlv.AppendUint16(msg, schema.NSTagNotifyCategory, uint16(*category))
		msg = tlv.AppendUint16(msg, schema.NSTagUniqueID, uint16(*id))
		msg = tlv.AppendUint16(msg, schema.NSTagParameterIDList, uint16(*params))
		if err := c.Send(msg); err != nil {
			return err
		}
		fmt.Println("sent")
		return nil
	case "watch":
		return watch(ctx, c)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func request(ctx context.Context, c *wslink.Client, opts options, msg []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	resp, err := c.Request(reqCtx, msg)
	if err != nil {
		return err
	}
	return printMessage(resp)
}

func watch(ctx context.Context, c *wslink.Client) error {
	for {
		msg, err := c.Receive(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := printMessage(msg); err != nil {
			return err
		}
	}
}

func printMessage(b []byte) error {
	msg, err := protocol.ParseMessage(b)
	if err != nil {
		return err
	}
	fields, err := tlv.DecodeFields(msg.Params, msg.ParamCount)
	if err != nil {
		return err
	}
	out := decodedMessage{Service: msg.Service.String(), MessageID: msg.MessageID, Params: make([]decodedParam, 0, len(fields))}
	for _, f := range fields {
		out.Params = append(out.Params, decodedParam{Tag: f.Tag, Value: hex.EncodeToString(f.Value)})
	}
	return json.NewEncoder(os.Stdout).Encode(out)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "pdlpctl: "+format+"\n", args...)
	os.Exit(1)
}
