// Command admin creates or promotes an administrator account.
//
// Usage:
//
//	admin -account 100200 [server flags]
//
// The password is read from the terminal. Server settings (DSN and so on)
// come from the same sources as for the server.
package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/dmitrijs2005/difychat/internal/flagx"
	"github.com/dmitrijs2005/difychat/internal/prompt"
	"github.com/dmitrijs2005/difychat/internal/server"
	"github.com/dmitrijs2005/difychat/internal/server/config"
	"github.com/joho/godotenv"
)

func main() {

	_ = godotenv.Load()

	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	account := fs.String("account", "", "administrator account (digits)")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-account", "--account"}))

	cfg := config.LoadConfig()

	if *account == "" {
		a, err := prompt.GetSimpleText(bufio.NewReader(os.Stdin), "Administrator account", os.Stdout)
		if err != nil {
			log.Fatalf("%v", err)
		}
		*account = a
	}

	password, err := prompt.NewPassword(os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	a, err := server.BootstrapAdmin(ctx, cfg, *account, password)
	if err != nil {
		log.Fatalf("%v", err)
	}

	log.Printf("administrator %s (id %d) is ready", a.Account, a.ID)
}
