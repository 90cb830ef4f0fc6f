package admincli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ruianderson/sts-proxy/pkg/communicator"
	"github.com/ruianderson/sts-proxy/pkg/config"
	"github.com/ruianderson/sts-proxy/pkg/params"
	"github.com/ruianderson/sts-proxy/pkg/transport"
)

type requestOptions struct {
	sourceOptions
	paramsJSON string
	protocol   []string
}

func (o *requestOptions) bind(cmd *cobra.Command) {
	o.sourceOptions.bind(cmd)
	fs := cmd.Flags()
	fs.StringVarP(&o.paramsJSON, "params", "p", "", `caller params as a JSON object, or "-" to read stdin`)
	fs.StringArrayVar(&o.protocol, "protocol", nil, "protocol param NAME=VALUE (repeatable, order kept)")
}

func (o *requestOptions) request(action string, stdin io.Reader) (communicator.Request, error) {
	raw := o.paramsJSON
	if strings.TrimSpace(raw) == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			return communicator.Request{}, fmt.Errorf("read params: %w", err)
		}
		raw = string(b)
	}
	in, err := params.ParseJSON([]byte(raw))
	if err != nil {
		return communicator.Request{}, fmt.Errorf("parse --params: %w", err)
	}
	protocol, err := parseProtocolFlags(o.protocol)
	if err != nil {
		return communicator.Request{}, err
	}
	return communicator.Request{Action: action, Params: in, Protocol: protocol}, nil
}

func parseProtocolFlags(values []string) (*params.Map, error) {
	out := params.New(len(values))
	for _, v := range values {
		k, val, ok := strings.Cut(v, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --protocol %q (want NAME=VALUE)", v)
		}
		out.Set(k, val)
	}
	return out, nil
}

func (o *requestOptions) newCommunicator(cfg *config.Config, tr transport.Transport) (*communicator.Communicator, error) {
	reg, _, err := o.guidesFor(cfg, false)
	if err != nil {
		return nil, err
	}
	return communicator.New(reg, tr, communicator.Options{
		Endpoint:    cfg.Gateway.URL,
		ContentType: cfg.Gateway.ContentType,
		Defaults:    cfg.Gateway.Params,
	}), nil
}

func newRenderCmd() *cobra.Command {
	var opts requestOptions
	cmd := &cobra.Command{
		Use:   "render <action>",
		Short: "Print the gateway XML an action would send, without sending it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			req, err := opts.request(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			comm, err := opts.newCommunicator(cfg, nil)
			if err != nil {
				return err
			}
			doc, err := comm.Render(req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := out.Write(doc); err != nil {
				return err
			}
			_, err = fmt.Fprintln(out)
			return err
		},
	}
	opts.bind(cmd)
	return cmd
}

func newCallCmd() *cobra.Command {
	var (
		opts    requestOptions
		gateway string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "call <action>",
		Short: "Run an action against the gateway and print the filtered JSON result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if g := strings.TrimSpace(gateway); g != "" {
				cfg.Gateway.URL = g
			}
			req, err := opts.request(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			client, err := transport.NewHTTPClient(transport.ClientOptions{
				ConnectTimeout: time.Duration(cfg.Gateway.ConnectTimeoutMs) * time.Millisecond,
				Timeout:        time.Duration(cfg.Gateway.TimeoutMs) * time.Millisecond,
				ProxyURL:       cfg.Gateway.ProxyURL,
			})
			if err != nil {
				return err
			}
			comm, err := opts.newCommunicator(cfg, &transport.HTTP{Client: client, MaxResponseBytes: cfg.Gateway.MaxResponseBytes})
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			res, err := comm.Run(ctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", communicator.Kind(err), err)
			}
			b, err := res.MarshalJSON()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
	opts.bind(cmd)
	cmd.Flags().StringVar(&gateway, "gateway", "", "gateway url (overrides config gateway.url)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall deadline for the call")
	return cmd
}

