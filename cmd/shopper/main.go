// Command shopper is a terminal client for the marketplace: it keeps a local
// cart and wishlist and checks out against the API.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/desietsy/desietsy-backend-go/apiclient"
	"github.com/desietsy/desietsy-backend-go/cart"
	"github.com/desietsy/desietsy-backend-go/checkout"
	"github.com/desietsy/desietsy-backend-go/config"
	"github.com/desietsy/desietsy-backend-go/logging"
	"github.com/desietsy/desietsy-backend-go/models"
)

const sessionKey = "session"

const usage = `usage: shopper [flags] <command> [args]

commands:
  login <email> <password>
  products
  add <productId>            add one to the cart
  remove <productId>
  qty <productId> <delta>    change quantity by delta (never below 1)
  cart
  wish <productId>           add to the wishlist
  unwish <productId>
  wishlist
  move <productId>           move from wishlist to cart
  checkout                   place an order (see -mode and delivery flags)
  orders
  cancel <orderId>
`

type app struct {
	api     *apiclient.Client
	store   *cart.Store
	storage *cart.FileStorage
	session *apiclient.Session
	out     *tabwriter.Writer
	log     *slog.Logger
}

func main() {
	config.LoadEnv()

	home, _ := os.UserHomeDir()
	apiURL := flag.String("api", config.GetEnv("DESIETSY_API", "http://localhost:5000"), "API base URL")
	dataDir := flag.String("data", filepath.Join(home, ".desietsy"), "directory for the local cart")
	mode := flag.String("mode", "cod", "payment mode: cod or razorpay")
	ttl := flag.Duration("payment-timeout", checkout.DefaultPendingTTL, "how long to wait for a gateway payment")
	var delivery checkout.DeliveryDetails
	flag.StringVar(&delivery.Name, "name", "", "delivery name")
	flag.StringVar(&delivery.Mobile, "mobile", "", "delivery mobile number")
	flag.StringVar(&delivery.Address, "address", "", "street address")
	flag.StringVar(&delivery.City, "city", "", "city")
	flag.StringVar(&delivery.State, "state", "", "state")
	flag.StringVar(&delivery.Pincode, "pincode", "", "pincode")
	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log := logging.New("shopper", "cli", config.GetEnv("LOG_LEVEL", "warn"))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(*apiURL, *dataDir, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	args := flag.Args()
	switch args[0] {
	case "checkout":
		err = a.checkout(ctx, *mode, delivery, *ttl)
	default:
		err = a.run(ctx, args[0], args[1:])
	}
	a.out.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp(apiURL, dataDir string, log *slog.Logger) (*app, error) {
	storage, err := cart.NewFileStorage(dataDir)
	if err != nil {
		return nil, err
	}
	store, err := cart.Open(storage, log)
	if err != nil {
		return nil, err
	}

	a := &app{
		api:     apiclient.NewClient(apiURL),
		store:   store,
		storage: storage,
		out:     tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0),
		log:     log,
	}
	if data, err := storage.Load(sessionKey); err == nil {
		var s apiclient.Session
		if json.Unmarshal(data, &s) == nil && s.Token != "" {
			a.session = &s
			a.api.SetToken(s.Token)
		}
	}
	return a, nil
}

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	need := map[string]int{
		"login": 2, "add": 1, "remove": 1, "qty": 2, "wish": 1,
		"unwish": 1, "move": 1, "cancel": 1,
	}
	if n, ok := need[cmd]; ok && len(args) < n {
		return fmt.Errorf("%s needs %d argument(s)", cmd, n)
	}

	switch cmd {
	case "login":
		s, err := a.api.Login(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		data, err := json.Marshal(s)
		if err != nil {
			return err
		}
		if err := a.storage.Save(sessionKey, data); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "logged in as %s (%s)\n", s.User.Name, s.User.Role)
		return nil

	case "products":
		products, err := a.api.Products(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ID\tTITLE\tPRICE\tCATEGORY")
		for _, p := range products {
			fmt.Fprintf(a.out, "%s\t%s\t%.2f\t%s\n", p.ID.Hex(), p.Title, p.Price, p.Category)
		}
		return nil

	case "add", "wish":
		p, err := a.api.Product(ctx, args[0])
		if err != nil {
			return err
		}
		snap := cart.SnapshotOf(*p)
		if cmd == "add" {
			_, err = a.store.AddToCart(snap)
		} else {
			_, err = a.store.AddToWishlist(snap)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "added %s\n", p.Title)
		return nil

	case "remove":
		return a.mutate(a.store.RemoveFromCart(args[0]))

	case "qty":
		delta, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("delta must be a number: %w", err)
		}
		return a.mutate(a.store.SetQuantity(args[0], delta))

	case "cart":
		a.printCart(a.store.State())
		return nil

	case "unwish":
		_, err := a.store.RemoveFromWishlist(args[0])
		return err

	case "wishlist":
		fmt.Fprintln(a.out, "ID\tTITLE\tPRICE")
		for _, w := range a.store.State().Wishlist() {
			fmt.Fprintf(a.out, "%s\t%s\t%.2f\n", w.ProductID, w.Title, w.Price)
		}
		return nil

	case "move":
		return a.mutate(a.store.MoveToCart(args[0]))

	case "orders":
		s, err := a.requireSession()
		if err != nil {
			return err
		}
		orders, err := a.api.BuyerOrders(ctx, s.User.ID.Hex())
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, "ORDER\tPLACED\tTOTAL\tPAYMENT\tSTATUS")
		for _, o := range orders {
			fmt.Fprintf(a.out, "%s\t%s\t%.2f\t%s\t%s\n", o.ID.Hex(), o.PlacedAt.Format("2006-01-02"), o.Total, o.PaymentState, o.Status)
		}
		return nil

	case "cancel":
		order, err := a.api.CancelOrder(ctx, args[0])
		if err != nil {
			if errors.Is(err, models.ErrInvalidState) {
				return fmt.Errorf("order can no longer be cancelled: %w", err)
			}
			return err
		}
		fmt.Fprintf(a.out, "order %s is now %s\n", order.ID.Hex(), order.Status)
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) mutate(st cart.State, err error) error {
	if err != nil {
		return err
	}
	a.printCart(st)
	return nil
}

func (a *app) printCart(st cart.State) {
	if st.Empty() {
		fmt.Fprintln(a.out, "your cart is empty")
		return
	}
	fmt.Fprintln(a.out, "ID\tTITLE\tQTY\tSUBTOTAL")
	for _, e := range st.Items() {
		fmt.Fprintf(a.out, "%s\t%s\t%d\t%s\n", e.ProductID, e.Title, e.Quantity, e.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(a.out, "\t\t%d items\t%s\n", st.ItemCount(), st.AmountDue().StringFixed(2))
}

func (a *app) requireSession() (*apiclient.Session, error) {
	if a.session == nil {
		return nil, fmt.Errorf("%w: run `shopper login` first", models.ErrValidation)
	}
	return a.session, nil
}

func (a *app) checkout(ctx context.Context, mode string, delivery checkout.DeliveryDetails, ttl time.Duration) error {
	s, err := a.requireSession()
	if err != nil {
		return err
	}
	pm, err := checkout.ParsePaymentMode(mode)
	if err != nil {
		return err
	}

	waitCtx, abandon := context.WithCancel(ctx)
	defer abandon()
	widget := &terminalWidget{in: bufio.NewReader(os.Stdin), out: os.Stdout, abandon: abandon}

	o := checkout.New(a.store, a.api, a.api, widget, a.api,
		checkout.WithPendingTTL(ttl),
		checkout.WithLogger(a.log),
	)
	p, err := o.Checkout(ctx, checkout.Request{
		Buyer:    checkout.Buyer{ID: s.User.ID.Hex(), Name: s.User.Name, Email: s.User.Email},
		Delivery: delivery,
		Mode:     pm,
	})
	if err != nil {
		return err
	}

	res, err := p.Wait(waitCtx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return errors.New("payment cancelled, your cart is unchanged")
		}
		if errors.Is(err, checkout.ErrPaymentExpired) {
			return errors.New("payment window expired, your cart is unchanged")
		}
		return err
	}

	fmt.Fprintf(a.out, "order %s placed (%s, total %.2f)\n", res.Order.ID.Hex(), res.Mode.Label(), res.Order.Total)
	if res.Warning != "" {
		fmt.Fprintf(a.out, "note: %s\n", res.Warning)
	}
	return nil
}
