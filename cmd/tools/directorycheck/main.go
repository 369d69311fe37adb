package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"

	"github.com/zhouzirui/z-favorites/backend/internal/config"
	"github.com/zhouzirui/z-favorites/backend/internal/model/user"
	"github.com/zhouzirui/z-favorites/backend/internal/service/directory"
	"github.com/zhouzirui/z-favorites/backend/internal/service/favorites"
	"github.com/zhouzirui/z-favorites/backend/internal/storage/kv"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] failed to load .env, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	page := flag.IntP("page", "p", cfg.Directory.Page, "directory page to fetch")
	baseURL := flag.String("base-url", cfg.Directory.BaseURL, "directory API base URL")
	timeout := flag.Duration("timeout", cfg.Directory.Timeout, "request timeout")
	asJSON := flag.Bool("json", false, "print records as JSON instead of a table")
	showFavorites := flag.Bool("favorites", false, "also print favorites held by the configured store")
	resetFavorites := flag.Bool("reset-favorites", false, "delete the stored favorites before printing")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+5*time.Second)
	defer cancel()

	client := directory.NewHTTPClient(*baseURL,
		directory.WithTimeout(*timeout),
		directory.WithAPIKey(cfg.Directory.APIKey),
	)

	users, err := client.FetchUsers(ctx, *page)
	if err != nil {
		log.Fatalf("fetch page %d failed: %v", *page, err)
	}
	log.Printf("fetched %d users from %s page=%d", len(users), *baseURL, *page)
	printUsers(users, *asJSON)

	if !*showFavorites && !*resetFavorites {
		return
	}

	store, err := kv.Open(ctx, cfg.Storage.Driver, cfg.Storage.Path)
	if err != nil {
		log.Fatalf("open storage failed: %v", err)
	}
	defer store.Close()

	if *resetFavorites {
		if err := store.Delete(ctx, cfg.Storage.Key); err != nil {
			log.Fatalf("delete favorites failed: %v", err)
		}
		log.Printf("deleted stored favorites key=%s", cfg.Storage.Key)
	}
	if !*showFavorites {
		return
	}

	blob, found, err := store.Get(ctx, cfg.Storage.Key)
	if err != nil {
		log.Fatalf("read favorites failed: %v", err)
	}
	if !found {
		fmt.Println("No favorites yet")
		return
	}

	// Same check the server applies at startup.
	favs, err := favorites.DecodeFavorites(blob)
	if err != nil {
		log.Fatalf("stored favorites under %q would be discarded: %v", cfg.Storage.Key, err)
	}
	fmt.Printf("\nfavorites (%s):\n", cfg.Storage.Key)
	printUsers(favs, *asJSON)
}

func printUsers(users []user.User, asJSON bool) {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(users); err != nil {
			log.Printf("encode failed: %v", err)
		}
		return
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tFAVORITE")
	for _, u := range users {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", u.ID, u.FullName(), u.Email, u.IsFavorite)
	}
	tw.Flush()
}
