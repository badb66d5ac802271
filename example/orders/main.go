// Command orders places a batch of orders through the domain layer on a selectable backend
// and keeps two read models up to date with catch-up projectors.
//
//	go run ./example/orders -backend sqlite -orders 200 -workers 8 -metrics-addr :9090
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/catchup-eventstore-go/domain"
	"github.com/AntonStoeckl/catchup-eventstore-go/eventstore"
	"github.com/AntonStoeckl/catchup-eventstore-go/projector"
	"github.com/AntonStoeckl/catchup-eventstore-go/testutil/fixtures"
)

const (
	orderListBookmark  = "order-list"
	salesTallyBookmark = "sales-tally"
	aggregateCacheSize = 1024
)

var skus = []string{"sku-apple", "sku-pear", "sku-plum"}

type ordersDomain = domain.Domain[fixtures.OrderEvent, fixtures.Order, fixtures.OrderCommand]

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg Config) error {
	obs := newObservability(cfg)
	defer obs.Shutdown()

	provider, release, err := openProvider(ctx, cfg, obs)
	if err != nil {
		return fmt.Errorf("opening %s provider: %w", cfg.Backend, err)
	}
	defer release()

	orders, err := newOrdersDomain(provider, obs)
	if err != nil {
		return err
	}

	orderList := NewOrderList()
	tally := NewSalesTally()

	group, err := newProjectorGroup(ctx, provider, obs, orderList, tally)
	if err != nil {
		return err
	}

	projectorsCtx, stopProjectors := context.WithCancel(ctx)
	projectorsDone := make(chan error, 1)

	go func() { projectorsDone <- group.Run(projectorsCtx) }()

	started := time.Now()
	placed, err := simulate(ctx, cfg, orders, obs)

	stopProjectors()
	if runErr := <-projectorsDone; runErr != nil {
		return errors.Join(err, runErr)
	}

	if err != nil {
		return err
	}

	if _, err = group.CatchUp(ctx); err != nil {
		return fmt.Errorf("catching up read models: %w", err)
	}

	report(obs, placed, orderList, tally, time.Since(started))

	return nil
}

func newOrdersDomain(provider eventstore.Provider, obs *Observability) (*ordersDomain, error) {
	cache, err := domain.NewLRUCache[fixtures.Order](aggregateCacheSize)
	if err != nil {
		return nil, err
	}

	options := []domain.Option{
		domain.WithCache[fixtures.Order](cache),
		domain.WithMetrics(obs.Metrics),
	}

	if obs.ContextualLogger != nil {
		options = append(options, domain.WithContextualLogger(obs.ContextualLogger))
	} else {
		options = append(options, domain.WithLogger(obs.Logger))
	}

	if obs.Tracing != nil {
		options = append(options, domain.WithTracing(obs.Tracing))
	}

	return domain.New(
		domain.Options[fixtures.OrderEvent, fixtures.Order]{
			Stream:   fixtures.OrdersStream,
			Provider: provider,
			Codec:    fixtures.NewOrderCodec(),
			Fold:     fixtures.FoldOrder,
		},
		fixtures.OrderHandlers(time.Now),
		options...,
	)
}

// newProjectorGroup resets the bookmarks, since the read models live in memory and start empty.
func newProjectorGroup(
	ctx context.Context,
	provider eventstore.Provider,
	obs *Observability,
	orderList *OrderList,
	tally *SalesTally,
) (*projector.Group, error) {

	options := []projector.Option{
		projector.WithPollInterval(50 * time.Millisecond),
		projector.WithMetrics(obs.Metrics),
		projector.WithLogger(obs.Logger),
		projector.WithErrorObserver(func(ctx context.Context, err error) {
			obs.Logger.ErrorContext(ctx, "projector failed", "error", err)
		}),
	}

	if obs.Tracing != nil {
		options = append(options, projector.WithTracing(obs.Tracing))
	}

	orderListProjector, err := projector.New(orderListBookmark, provider, orderList.Subscriptions(), options...)
	if err != nil {
		return nil, err
	}

	if err = orderList.Register(orderListProjector); err != nil {
		return nil, err
	}

	tallyProjector, err := projector.New(salesTallyBookmark, provider, []projector.Subscription{{
		Stream:     fixtures.OrdersStream,
		EventTypes: []string{fixtures.ItemAddedEventType},
	}}, options...)
	if err != nil {
		return nil, err
	}

	if err = tally.Register(tallyProjector); err != nil {
		return nil, err
	}

	for _, p := range []*projector.Projector{orderListProjector, tallyProjector} {
		if err = p.Reset(ctx); err != nil {
			return nil, fmt.Errorf("resetting bookmark %q: %w", p.Bookmark(), err)
		}
	}

	return projector.NewGroup(orderListProjector, tallyProjector)
}

// simulate runs the life cycle of cfg.Orders orders on cfg.Workers workers. Every fifth order gets
// a second clerk adding items concurrently, which the conflict retry resolves.
func simulate(ctx context.Context, cfg Config, orders *ordersDomain, obs *Observability) ([]string, error) {
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Workers)

	placed := make([]string, cfg.Orders)

	for i := range cfg.Orders {
		eg.Go(func() error {
			orderID, err := uuid.NewV7()
			if err != nil {
				return err
			}

			placed[i] = orderID.String()

			return lifecycle(ctx, orders, obs, placed[i], i)
		})
	}

	return placed, eg.Wait()
}

func lifecycle(ctx context.Context, orders *ordersDomain, obs *Observability, orderID string, i int) error {
	retry := func(operation string, cmd fixtures.OrderCommand) error {
		_, err := domain.RetryOnConflict(ctx, func(ctx context.Context) error {
			_, err := orders.Execute(ctx, orderID, cmd)
			return err
		}, domain.WithRetryMetrics(obs.Metrics, operation))

		return err
	}

	if err := retry("place_order", fixtures.PlaceOrder{CustomerID: fmt.Sprintf("customer-%d", i%7)}); err != nil {
		return err
	}

	order, err := orders.Load(ctx, orderID)
	if err != nil {
		return err
	}

	for line := range 1 + i%3 {
		if order, err = order.Execute(ctx, fixtures.AddItem{SKU: skus[(i+line)%len(skus)], Quantity: 1 + line}); err != nil {
			break
		}
	}

	if err != nil && !errors.Is(err, eventstore.ErrVersionConflict) {
		return err
	}

	if i%5 == 0 {
		clerk := errgroup.Group{}
		for range 2 {
			clerk.Go(func() error { return retry("add_item", fixtures.AddItem{SKU: skus[0], Quantity: 1}) })
		}

		if clerkErr := clerk.Wait(); clerkErr != nil {
			return clerkErr
		}
	}

	if i%4 == 0 {
		return retry("cancel_order", fixtures.CancelOrder{Reason: "customer request"})
	}

	return retry("ship_order", fixtures.ShipOrder{})
}

func report(obs *Observability, placed []string, orderList *OrderList, tally *SalesTally, elapsed time.Duration) {
	counts := orderList.CountByStatus()

	obs.Logger.Info("orders processed",
		"placed", len(placed),
		"shipped", counts[fixtures.StatusShipped],
		"canceled", counts[fixtures.StatusCanceled],
		"elapsed_ms", elapsed.Milliseconds())

	for _, sku := range skus {
		obs.Logger.Info("sales", "sku", sku, "quantity", tally.Total(sku))
	}
}
