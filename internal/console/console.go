// Package console drives the registry from a line-oriented text menu. Each
// menu choice is one registry call; failures are printed and the loop goes
// on.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"libralend/internal/apperrors"
	"libralend/internal/ids"
	"libralend/internal/library"
	"libralend/internal/logger"
	"libralend/internal/membership"
)

const menu = `
1. Add item
2. Register borrower
3. Issue loan
4. Return loan
5. List items
6. Loans of borrower
7. Borrowers with fines
8. Exit
`

// errQuit ends the loop without being reported.
var errQuit = errors.New("quit")

type Driver struct {
	reg *library.Registry
	in  *bufio.Scanner
	out io.Writer
	log *logger.Logger
}

func New(reg *library.Registry, in io.Reader, out io.Writer, log *logger.Logger) *Driver {
	if log == nil {
		log = logger.Nop()
	}
	return &Driver{reg: reg, in: bufio.NewScanner(in), out: out, log: log}
}

// Run shows the menu until the user picks Exit or the input ends.
func (d *Driver) Run(ctx context.Context) error {
	d.println("=== Library Lending ===")
	for {
		d.print(menu)
		choice, err := d.prompt("Option: ")
		if err != nil {
			return d.finish(err)
		}

		if err := d.dispatch(ctx, choice); err != nil {
			if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
				return d.finish(err)
			}
			d.log.Debug(ctx, "console operation failed", zap.String("option", choice), zap.Error(err))
			d.println("Error: " + err.Error())
		}
	}
}

func (d *Driver) finish(err error) error {
	d.println("Goodbye.")
	if errors.Is(err, errQuit) || errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (d *Driver) dispatch(ctx context.Context, choice string) error {
	switch choice {
	case "1":
		return d.addItem(ctx)
	case "2":
		return d.registerBorrower(ctx)
	case "3":
		return d.issueLoan(ctx)
	case "4":
		return d.returnLoan(ctx)
	case "5":
		for _, v := range d.reg.ListCatalogItems(ctx) {
			d.println(v.String())
		}
	case "6":
		id, err := d.memberID()
		if err != nil {
			return err
		}
		for _, v := range d.reg.LoansOfBorrower(ctx, id) {
			d.println(v.String())
		}
	case "7":
		for _, v := range d.reg.BorrowersWithPenalties(ctx) {
			d.println(v.String())
		}
	case "8":
		return errQuit
	default:
		d.println("Invalid option.")
	}
	return nil
}

func (d *Driver) addItem(ctx context.Context) error {
	title, err := d.prompt("Title: ")
	if err != nil {
		return err
	}
	author, err := d.prompt("Author: ")
	if err != nil {
		return err
	}
	year, err := d.promptInt("Year: ", "year")
	if err != nil {
		return err
	}
	copies, err := d.promptInt("Copies: ", "total_copies")
	if err != nil {
		return err
	}

	id, err := d.reg.AddCatalogItem(ctx, title, author, year, copies)
	if err != nil {
		return err
	}
	d.println("Item added with ISBN: " + string(id))
	return nil
}

func (d *Driver) registerBorrower(ctx context.Context) error {
	name, err := d.prompt("Name: ")
	if err != nil {
		return err
	}
	email, err := d.prompt("Email: ")
	if err != nil {
		return err
	}

	id, err := d.reg.RegisterBorrower(ctx, name, email)
	if err != nil {
		return err
	}
	d.println("Borrower registered with ID: " + id.String())
	return nil
}

func (d *Driver) issueLoan(ctx context.Context) error {
	memberID, err := d.memberID()
	if err != nil {
		return err
	}
	isbn, err := d.prompt("Item ISBN: ")
	if err != nil {
		return err
	}

	id, err := d.reg.IssueLoan(ctx, memberID, ids.ItemID(isbn))
	if err != nil {
		return err
	}
	d.println("Loan created with ID: " + id.String())
	return nil
}

func (d *Driver) returnLoan(ctx context.Context) error {
	raw, err := d.promptInt("Loan ID: ", "loan_id")
	if err != nil {
		return err
	}

	receipt, err := d.reg.ReturnLoan(ctx, ids.LoanID(raw))
	if err != nil {
		return err
	}
	d.println("Return processed.")
	if receipt == nil {
		return nil
	}
	if receipt.FineAssessed.IsPositive() {
		d.println("Fine assessed: " + receipt.FineAssessed.StringFixed(2))
	}
	if receipt.FineRejected != nil {
		d.println("Warning: fine not posted: " + receipt.FineRejected.Error())
	}
	return nil
}

func (d *Driver) memberID() (ids.MemberID, error) {
	raw, err := d.prompt("Borrower ID: ")
	if err != nil {
		return 0, err
	}
	return membership.ParseID(raw)
}

func (d *Driver) prompt(label string) (string, error) {
	d.print(label)
	if !d.in.Scan() {
		if err := d.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		return "", io.EOF
	}
	return strings.TrimSpace(d.in.Text()), nil
}

func (d *Driver) promptInt(label, field string) (int, error) {
	raw, err := d.prompt(label)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Invalid(field, "%q is not a number", raw)
	}
	return n, nil
}

func (d *Driver) print(s string) {
	fmt.Fprint(d.out, s)
}

func (d *Driver) println(s string) {
	fmt.Fprintln(d.out, s)
}
