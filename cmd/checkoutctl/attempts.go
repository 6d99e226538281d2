package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/fjod/go_cart/storefront/domain"
	"github.com/fjod/go_cart/storefront/internal/cart/cache"
	cartrepo "github.com/fjod/go_cart/storefront/internal/cart/repository"
	cartservice "github.com/fjod/go_cart/storefront/internal/cart/service"
	"github.com/fjod/go_cart/storefront/internal/config"
	"github.com/fjod/go_cart/storefront/internal/materializer"
	"github.com/fjod/go_cart/storefront/internal/repository"
	"github.com/fjod/go_cart/storefront/internal/service"
	"github.com/fjod/go_cart/storefront/pkg/logger"
	"github.com/fjod/go_cart/storefront/pkg/retry"
	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

type attemptView struct {
	ID              string    `json:"checkout_id"`
	OwnerID         string    `json:"owner_id"`
	Status          string    `json:"status"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	FailureCode     string    `json:"failure_code,omitempty"`
	FailureMessage  string    `json:"failure_message,omitempty"`
	AmountMinor     int64     `json:"amount_minor"`
	Currency        string    `json:"currency"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	OrderID         string    `json:"order_id,omitempty"`
	ReconcileCount  int       `json:"reconcile_count"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toView(a *domain.CheckoutAttempt) attemptView {
	v := attemptView{
		ID:              a.ID,
		OwnerID:         a.OwnerID,
		Status:          a.Status.String(),
		FailureReason:   string(a.FailureReason),
		FailureCode:     a.FailureCode,
		FailureMessage:  a.FailureMessage,
		AmountMinor:     a.AmountMinor,
		Currency:        a.Currency,
		PaymentIntentID: a.PaymentIntentID,
		ReconcileCount:  a.ReconcileCount,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.OrderID != nil {
		v.OrderID = *a.OrderID
	}
	return v
}

func listAttemptsCommand(c *cli.Context) error {
	env, err := openEnv(c.Context, false)
	if err != nil {
		return err
	}
	defer env.Close()

	var attempts []*domain.CheckoutAttempt
	if c.Bool("stuck") {
		attempts, err = env.checkout.ListReconciliationCandidates(c.Context, c.Int("limit"))
	} else {
		attempts, err = env.repo.ListAttempts(c.Context, repository.AttemptFilter{
			OwnerID: c.String("owner"),
			Status:  domain.CheckoutStatus(c.String("status")),
			Limit:   c.Int("limit"),
		})
	}
	if err != nil {
		return fmt.Errorf("failed to list attempts: %w", err)
	}

	return printAttempts(os.Stdout, c.Bool("json"), attempts...)
}

func showAttemptCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("checkout id is required")
	}

	env, err := openEnv(c.Context, false)
	if err != nil {
		return err
	}
	defer env.Close()

	attempt, err := env.repo.GetAttempt(c.Context, id)
	if err != nil {
		return fmt.Errorf("failed to get attempt %s: %w", id, err)
	}
	return printAttempts(os.Stdout, c.Bool("json"), attempt)
}

func reconcileAttemptCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("checkout id is required")
	}

	env, err := openEnv(c.Context, true)
	if err != nil {
		return err
	}
	defer env.Close()

	attempt, err := env.checkout.Reconcile(c.Context, id)
	if attempt != nil {
		if errPrint := printAttempts(os.Stdout, c.Bool("json"), attempt); errPrint != nil {
			return errPrint
		}
	}
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", id, err)
	}
	return nil
}

func migrateCommand(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	repo, err := repository.NewRepository(&cfg.Postgres)
	if err != nil {
		return err
	}
	defer repo.Close()

	if err := repo.RunMigrations(&cfg.Postgres); err != nil {
		return err
	}
	fmt.Println("migrations applied")
	return nil
}

func printAttempts(w io.Writer, asJSON bool, attempts ...*domain.CheckoutAttempt) error {
	views := make([]attemptView, 0, len(attempts))
	for _, a := range attempts {
		views = append(views, toView(a))
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECKOUT ID\tOWNER\tSTATUS\tREASON\tAMOUNT\tORDER\tRECONCILES\tUPDATED")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d %s\t%s\t%d\t%s\n",
			v.ID, v.OwnerID, v.Status, v.FailureReason, v.AmountMinor, v.Currency,
			v.OrderID, v.ReconcileCount, v.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

type cliEnv struct {
	repo     *repository.Repository
	checkout *service.CheckoutServiceImpl
	closers  []func()
}

func (e *cliEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// openEnv connects to the order store. withCart also connects the cart store,
// which only reconcile needs.
func openEnv(ctx context.Context, withCart bool) (*cliEnv, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		return nil, err
	}

	repo, err := repository.NewRepository(&cfg.Postgres)
	if err != nil {
		return nil, err
	}
	env := &cliEnv{repo: repo}
	env.closers = append(env.closers, func() { _ = repo.Close() }, func() { _ = log.Sync() })

	var m service.Materializer
	var cartHandler *service.CartHandler
	if withCart {
		db, err := cartrepo.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.closers = append(env.closers, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = db.Client().Disconnect(ctx)
		})

		// Deleting purchased items has to drop the shopper's cached cart too.
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPass})
		env.closers = append(env.closers, func() { _ = redisClient.Close() })

		carts := cartservice.NewCartService(cartrepo.NewMongoRepository(db), cache.NewRedisCache(redisClient), log)
		cartHandler = service.NewCartHandler(carts, cfg.RequestTimeout)
		m = materializer.New(repo, carts, log,
			materializer.WithTimeout(cfg.RequestTimeout),
			materializer.WithCreateRetry(retry.Policy{
				MaxRetries:      cfg.OrderCreateRetries,
				InitialInterval: cfg.RetryInitialInterval,
			}))
	}

	// Operator commands never issue payment intents.
	env.checkout = service.NewCheckoutService(repo, nil, cartHandler, m, log.With(zap.String("source", "checkoutctl")),
		service.WithCurrency(cfg.Currency),
		service.WithRecovery(cfg.StuckAttemptThreshold, cfg.ReconcileMaxAttempts),
	)
	return env, nil
}
