package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	domain "github.com/raistore/storefront/internal/domain"
	"github.com/raistore/storefront/internal/services"
)

// openFunc connects the order service for one command run. The returned
// closer drains pending notifications and releases clients.
type openFunc func(ctx context.Context) (services.OrderService, func() error, error)

type orderView struct {
	ID              string `json:"id"`
	OrderNumber     string `json:"orderNumber"`
	Status          string `json:"status"`
	PaymentStatus   string `json:"paymentStatus,omitempty"`
	PaymentIntentID string `json:"paymentIntentId,omitempty"`
	CustomerEmail   string `json:"customerEmail,omitempty"`
	Currency        string `json:"currency"`
	Total           string `json:"total"`
	Items           int    `json:"items"`
	CreatedAt       string `json:"createdAt"`
	UpdatedAt       string `json:"updatedAt"`
}

func viewOf(order services.Order) orderView {
	return orderView{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		PaymentStatus:   order.PaymentStatus,
		PaymentIntentID: order.PaymentIntentID,
		CustomerEmail:   order.Customer.Email,
		Currency:        order.Breakdown.Currency,
		Total:           domain.FromMinorUnits(order.Breakdown.Total).StringFixed(2),
		Items:           len(order.Items),
		CreatedAt:       order.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       order.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func newApp(open openFunc, out io.Writer) *cli.App {
	if out == nil {
		out = os.Stdout
	}
	actorFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:    "actor",
			Usage:   "operator id recorded with the change",
			EnvVars: []string{"ORDERCTL_ACTOR"},
		}
	}
	statusFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "status",
			Usage:    "target status (pending, processing, shipped, delivered, cancelled, refunded)",
			Required: true,
		}
	}

	return &cli.App{
		Name:      "orderctl",
		Usage:     "inspect and correct RaiStore orders",
		Writer:    out,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "print an order",
				ArgsUsage: "<order-id>",
				Action: func(c *cli.Context) error {
					orderID, err := orderIDArg(c)
					if err != nil {
						return err
					}
					return withOrders(c.Context, open, func(ctx context.Context, orders services.OrderService) error {
						order, err := orders.GetOrder(ctx, orderID)
						if err != nil {
							return err
						}
						return printOrder(c.App.Writer, order)
					})
				},
			},
			{
				Name:      "set-status",
				Usage:     "move an order along its lifecycle",
				ArgsUsage: "<order-id>",
				Flags:     []cli.Flag{statusFlag(), actorFlag()},
				Action: func(c *cli.Context) error {
					orderID, err := orderIDArg(c)
					if err != nil {
						return err
					}
					return withOrders(c.Context, open, func(ctx context.Context, orders services.OrderService) error {
						order, err := orders.SetStatus(ctx, services.SetOrderStatusCommand{
							OrderID: orderID,
							Status:  c.String("status"),
							ActorID: actorOf(c),
						})
						if err != nil {
							return err
						}
						return printOrder(c.App.Writer, order)
					})
				},
			},
			{
				Name:      "override-status",
				Usage:     "force a status outside the lifecycle table (audited)",
				ArgsUsage: "<order-id>",
				Flags: []cli.Flag{
					statusFlag(),
					actorFlag(),
					&cli.StringFlag{Name: "reason", Usage: "why the override is needed", Required: true},
				},
				Action: func(c *cli.Context) error {
					orderID, err := orderIDArg(c)
					if err != nil {
						return err
					}
					reason := strings.TrimSpace(c.String("reason"))
					if reason == "" {
						return cli.Exit("override-status: --reason must not be blank", 2)
					}
					return withOrders(c.Context, open, func(ctx context.Context, orders services.OrderService) error {
						order, err := orders.OverrideStatus(ctx, services.OverrideOrderStatusCommand{
							OrderID:   orderID,
							Status:    c.String("status"),
							ActorID:   actorOf(c),
							Reason:    reason,
							RequestID: "orderctl-" + uuid.NewString(),
						})
						if err != nil {
							return err
						}
						return printOrder(c.App.Writer, order)
					})
				},
			},
		},
	}
}

func orderIDArg(c *cli.Context) (string, error) {
	orderID := strings.TrimSpace(c.Args().First())
	if orderID == "" || c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("%s: exactly one order id is required", c.Command.Name), 2)
	}
	return orderID, nil
}

func actorOf(c *cli.Context) string {
	if actor := strings.TrimSpace(c.String("actor")); actor != "" {
		return actor
	}
	if user := strings.TrimSpace(os.Getenv("USER")); user != "" {
		return "orderctl:" + user
	}
	return "orderctl"
}

func withOrders(ctx context.Context, open openFunc, fn func(context.Context, services.OrderService) error) (err error) {
	orders, closeFn, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeFn == nil {
			return
		}
		if cerr := closeFn(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return describe(fn(ctx, orders))
}

// describe turns service sentinels into operator-facing exit errors.
func describe(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrOrderNotFound):
		return cli.Exit(err.Error(), 3)
	case errors.Is(err, services.ErrOrderIllegalTransition), errors.Is(err, services.ErrOrderInvalidStatus),
		errors.Is(err, services.ErrOrderInvalidInput):
		return cli.Exit(err.Error(), 2)
	case errors.Is(err, services.ErrOrderConflict):
		return cli.Exit(err.Error()+" (retry)", 4)
	default:
		return err
	}
}

func printOrder(w io.Writer, order services.Order) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(viewOf(order))
}
