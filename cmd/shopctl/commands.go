package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	shopfront "github.com/merchkit/shopfront/internal"
	"github.com/merchkit/shopfront/internal/storage"
)

// withApp wires the client for one command invocation and tears it down
// afterwards.
func withApp(configPath *string, fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd.Context(), *configPath)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a)
	}
}

// withLogin is withApp plus a login guard, for commands that hit
// user-scoped endpoints. Failing fast beats a guaranteed 401 round trip.
func withLogin(configPath *string, fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return withApp(configPath, func(ctx context.Context, a *app) error {
		if !a.session.LoggedIn() {
			return shopfront.ErrNotLoggedIn
		}
		return fn(ctx, a)
	})
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "shopctl",
		Short:         "Storefront client with a cached, tag-invalidated data layer",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "shopctl.yaml", "path to config file")

	root.AddCommand(
		newVersionCmd(),
		newLoginCmd(&configPath),
		newLogoutCmd(&configPath),
		newProductsCmd(&configPath),
		newProductCmd(&configPath),
		newCartCmd(&configPath),
		newOrdersCmd(&configPath),
		newOrderCmd(&configPath),
		newCheckoutCmd(&configPath),
		newCancelCmd(&configPath),
		newAdminCmd(&configPath),
		newUploadCmd(&configPath),
		newThemeCmd(&configPath),
		newWatchCmd(&configPath),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "shopctl", version)
		},
	}
}

func newLoginCmd(configPath *string) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Authenticate and store the session locally",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withApp(configPath, func(ctx context.Context, a *app) error {
			user, err := a.shop.Login(ctx, shopfront.Credentials{Email: args[0], Password: password})
			if err != nil {
				return err
			}
			fmt.Printf("logged in as %s (%s)\n", user.Name, user.Email)
			return nil
		})(c, args)
	}
	return cmd
}

func newLogoutCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear the local session",
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				if err := a.shop.Logout(ctx); err != nil {
					return err
				}
				fmt.Println("logged out")
				return nil
			})(c, args)
		},
	}
}

func newProductsCmd(configPath *string) *cobra.Command {
	var f shopfront.ProductFilter
	var withSponsored bool
	cmd := &cobra.Command{
		Use:   "products",
		Short: "Browse the catalog",
	}
	cmd.Flags().StringVar(&f.Category, "category", "", "filter by category")
	cmd.Flags().StringVar(&f.Search, "search", "", "search term")
	cmd.Flags().StringVar(&f.Sort, "sort", "", "sort order (price_asc, price_desc, rating, newest)")
	cmd.Flags().Float64Var(&f.MinPrice, "min-price", 0, "minimum price")
	cmd.Flags().Float64Var(&f.MaxPrice, "max-price", 0, "maximum price")
	cmd.Flags().IntVar(&f.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&f.PageSize, "size", 20, "page size")
	cmd.Flags().BoolVar(&withSponsored, "sponsored", false, "include sponsored placements")

	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withApp(configPath, func(ctx context.Context, a *app) error {
			if withSponsored && a.sponsored != nil && f.Search != "" {
				placements, err := a.sponsored.Search(ctx, f.Search)
				if err == nil {
					for _, p := range placements {
						fmt.Printf("%s  %-30s  sponsored\n", color.CyanString("AD"), p.Title)
					}
				}
			}
			page, err := a.shop.FetchProducts(ctx, f)
			if err != nil {
				return err
			}
			for _, p := range page.Items {
				stock := ""
				if !p.InStock {
					stock = "  (out of stock)"
				}
				fmt.Printf("%-8s  %-30s  %-12s  %8.2f%s\n", p.ID, p.Name, p.Category, p.Price, stock)
			}
			fmt.Printf("page %d/%d, %d products\n", page.Page, page.TotalPages, page.TotalCount)
			return nil
		})(c, args)
	}
	return cmd
}

func newProductCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "product <id>",
		Short: "Show one product",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				p, err := a.shop.FetchProduct(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s\n%s\ncategory: %s  brand: %s\nprice: %.2f  rating: %.1f\n",
					p.Name, p.Description, p.Category, p.Brand, p.Price, p.Rating)
				return nil
			})(c, args)
		},
	}
}

func newCartCmd(configPath *string) *cobra.Command {
	cart := &cobra.Command{
		Use:   "cart",
		Short: "Manage the cart",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the cart",
		RunE: func(c *cobra.Command, args []string) error {
			return withLogin(configPath, func(ctx context.Context, a *app) error {
				cart, err := a.shop.FetchCart(ctx)
				if err != nil {
					return err
				}
				printCart(cart)
				return nil
			})(c, args)
		},
	}

	var qty int
	add := &cobra.Command{
		Use:   "add <product-id>",
		Short: "Add a product to the cart",
		Args:  cobra.ExactArgs(1),
	}
	add.Flags().IntVar(&qty, "qty", 1, "quantity")
	add.RunE = func(c *cobra.Command, args []string) error {
		return withLogin(configPath, func(ctx context.Context, a *app) error {
			cart, err := a.shop.AddToCart(ctx, args[0], qty)
			if err != nil {
				return err
			}
			printCart(cart)
			return nil
		})(c, args)
	}

	set := &cobra.Command{
		Use:   "set <product-id> <qty>",
		Short: "Set a cart line's quantity",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return withLogin(configPath, func(ctx context.Context, a *app) error {
				var n int
				if _, err := fmt.Sscanf(args[1], "%d", &n); err != nil {
					return fmt.Errorf("quantity must be a number: %q", args[1])
				}
				cart, err := a.shop.SetCartQuantity(ctx, args[0], n)
				if err != nil {
					return err
				}
				printCart(cart)
				return nil
			})(c, args)
		},
	}

	rm := &cobra.Command{
		Use:   "rm <product-id>",
		Short: "Remove a product from the cart",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withLogin(configPath, func(ctx context.Context, a *app) error {
				return a.shop.RemoveFromCart(ctx, args[0])
			})(c, args)
		},
	}

	cart.AddCommand(show, add, set, rm)
	return cart
}

func printCart(cart shopfront.Cart) {
	for _, it := range cart.Items {
		fmt.Printf("%-8s  %-30s  x%-3d  %8.2f\n", it.ProductID, it.Name, it.Quantity, it.UnitPrice*float64(it.Quantity))
	}
	if cart.Discount > 0 {
		fmt.Printf("discount: -%.2f\n", cart.Discount)
	}
	fmt.Printf("total: %.2f\n", cart.Total)
}

func newOrdersCmd(configPath *string) *cobra.Command {
	var page int
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "List orders",
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withLogin(configPath, func(ctx context.Context, a *app) error {
			out, err := a.shop.FetchOrders(ctx, page)
			if err != nil {
				return err
			}
			for _, o := range out.Items {
				fmt.Printf("%-12s  %-10s  %8.2f  %s\n", o.ID, o.Status, o.Total, o.CreatedAt.Format("2006-01-02"))
			}
			return nil
		})(c, args)
	}
	return cmd
}

func newOrderCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "order <id>",
		Short: "Show one order",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withLogin(configPath, func(ctx context.Context, a *app) error {
				o, err := a.shop.FetchOrder(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("%s  %s  %.2f\n", o.ID, o.Status, o.Total)
				for _, it := range o.Items {
					fmt.Printf("  %-30s  x%-3d  %8.2f\n", it.Name, it.Quantity, it.UnitPrice*float64(it.Quantity))
				}
				return nil
			})(c, args)
		},
	}
}

func newCheckoutCmd(configPath *string) *cobra.Command {
	var address, payment string
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Place an order from the current cart",
	}
	cmd.Flags().StringVar(&address, "address", "", "shipping address")
	cmd.Flags().StringVar(&payment, "payment", "card", "payment method")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return withLogin(configPath, func(ctx context.Context, a *app) error {
			o, err := a.shop.Checkout(ctx, shopfront.CheckoutRequest{
				ShippingAddress: address,
				PaymentMethod:   payment,
			})
			if err != nil {
				return err
			}
			fmt.Printf("order placed: %s (%.2f)\n", o.ID, o.Total)
			return nil
		})(c, args)
	}
	return cmd
}

func newCancelCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <order-id>",
		Short: "Cancel an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withLogin(configPath, func(ctx context.Context, a *app) error {
				o, err := a.shop.CancelOrder(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("order %s is now %s\n", o.ID, o.Status)
				return nil
			})(c, args)
		},
	}
}

func newAdminCmd(configPath *string) *cobra.Command {
	admin := &cobra.Command{
		Use:   "admin",
		Short: "Recommendation and ML analytics",
	}

	segments := &cobra.Command{
		Use:   "segments",
		Short: "List user segments",
		RunE: func(c *cobra.Command, args []string) error {
			return withLogin(configPath, func(ctx context.Context, a *app) error {
				segs, err := a.shop.FetchSegments(ctx)
				if err != nil {
					return err
				}
				for _, s := range segs {
					fmt.Printf("%-20s  %8d users  %5.1f%%\n", s.Name, s.Size, s.Share*100)
				}
				return nil
			})(c, args)
		},
	}

	metrics := &cobra.Command{
		Use:   "metrics",
		Short: "Show recommendation model metrics",
		RunE: func(c *cobra.Command, args []string) error {
			return withLogin(configPath, func(ctx context.Context, a *app) error {
				m, err := a.shop.FetchRecommendationMetrics(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("model %s (generated %s)\nprecision: %.3f  recall: %.3f  ctr: %.3f\n",
					m.ModelVersion, m.GeneratedAt.Format("2006-01-02 15:04"), m.Precision, m.Recall, m.CTR)
				return nil
			})(c, args)
		},
	}

	train := &cobra.Command{
		Use:   "train",
		Short: "Trigger an ML training run",
		RunE: func(c *cobra.Command, args []string) error {
			return withLogin(configPath, func(ctx context.Context, a *app) error {
				t, err := a.shop.StartTraining(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("training %s (%.0f%%)\n", t.State, t.Progress*100)
				return nil
			})(c, args)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show ML training status",
		RunE: func(c *cobra.Command, args []string) error {
			return withLogin(configPath, func(ctx context.Context, a *app) error {
				t, err := a.shop.FetchTrainingStatus(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("training %s (%.0f%%)\n", t.State, t.Progress*100)
				return nil
			})(c, args)
		},
	}

	admin.AddCommand(segments, metrics, train, status)
	return admin
}

func newUploadCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <product-id> <image-file>",
		Short: "Upload a product image (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return withLogin(configPath, func(ctx context.Context, a *app) error {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				p, err := a.shop.UploadProductImage(ctx, args[0], filepath.Base(args[1]), f)
				if err != nil {
					return err
				}
				fmt.Printf("image uploaded: %s\n", p.ImageURL)
				return nil
			})(c, args)
		},
	}
}

func newThemeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "theme [light|dark]",
		Short: "Show or set the persisted theme preference",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			return withApp(configPath, func(ctx context.Context, a *app) error {
				if len(args) == 0 {
					theme, err := a.store.GetPreference(ctx, storage.PrefTheme)
					if err != nil {
						return err
					}
					if theme == "" {
						theme = "light"
					}
					fmt.Println(theme)
					return nil
				}
				return a.store.SetPreference(ctx, storage.PrefTheme, args[0])
			})(c, args)
		},
	}
}
