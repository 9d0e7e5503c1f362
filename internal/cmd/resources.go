package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yourorg/labtrack/internal/api"
	"github.com/yourorg/labtrack/internal/domain"
)

// resourceCommands builds the list/get/create/update/delete subcommand tree
// for one backend resource. The service is resolved lazily because the
// client only exists after the root pre-run.
func resourceCommands[T any](use, plural string, svc func() api.ResourceService[T], headers []string, row func(T) []string) *cobra.Command {
	parent := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("Manage %s", plural),
	}

	list := &cobra.Command{
		Use:   "list",
		Short: fmt.Sprintf("List %s", plural),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := api.ListOptions{}
			opts.Search, _ = cmd.Flags().GetString("search")
			opts.Page, _ = cmd.Flags().GetInt("page")
			opts.PageSize, _ = cmd.Flags().GetInt("page-size")

			items, err := svc().List(cmd.Context(), opts)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for i, h := range headers {
				if i > 0 {
					fmt.Fprint(w, "\t")
				}
				fmt.Fprint(w, h)
			}
			fmt.Fprintln(w)
			for _, item := range items {
				cells := row(item)
				for i, c := range cells {
					if i > 0 {
						fmt.Fprint(w, "\t")
					}
					fmt.Fprint(w, c)
				}
				fmt.Fprintln(w)
			}
			return w.Flush()
		},
	}
	list.Flags().String("search", "", "substring filter")
	list.Flags().Int("page", 0, "page number")
	list.Flags().Int("page-size", 0, "page size")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: fmt.Sprintf("Show one %s", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			item, err := svc().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(item)
		},
	}

	create := &cobra.Command{
		Use:   "create",
		Short: fmt.Sprintf("Create a %s from JSON (stdin or --file)", use),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v T
			if err := readJSONInput(cmd, &v); err != nil {
				return err
			}
			item, err := svc().Create(cmd.Context(), v)
			if err != nil {
				return err
			}
			return printJSON(item)
		},
	}
	create.Flags().String("file", "", "JSON file (defaults to stdin)")

	update := &cobra.Command{
		Use:   "update <id>",
		Short: fmt.Sprintf("Replace a %s from JSON (stdin or --file)", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v T
			if err := readJSONInput(cmd, &v); err != nil {
				return err
			}
			item, err := svc().Update(cmd.Context(), args[0], v)
			if err != nil {
				return err
			}
			return printJSON(item)
		},
	}
	update.Flags().String("file", "", "JSON file (defaults to stdin)")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: fmt.Sprintf("Delete a %s", use),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := svc().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ Deleted %s %s\n", use, args[0])
			return nil
		},
	}

	parent.AddCommand(list, get, create, update, del)
	return parent
}

func readJSONInput(cmd *cobra.Command, v any) error {
	file, _ := cmd.Flags().GetString("file")
	var reader io.Reader = os.Stdin
	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		reader = f
	}
	return json.NewDecoder(reader).Decode(v)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.AddCommand(
		resourceCommands("partner", "business partners",
			func() api.ResourceService[domain.BusinessPartner] { return a.client.BPartners },
			[]string{"ID", "CODE", "NAME"},
			func(v domain.BusinessPartner) []string { return []string{v.ID, v.Code, v.Name} }),
		resourceCommands("project", "projects",
			func() api.ResourceService[domain.Project] { return a.client.Projects },
			[]string{"ID", "CODE", "NAME", "PARTNER"},
			func(v domain.Project) []string { return []string{v.ID, v.Code, v.Name, v.PartnerID} }),
		resourceCommands("sample", "samples",
			func() api.ResourceService[domain.Sample] { return a.client.Samples },
			[]string{"ID", "CODE", "NAME", "PROJECT"},
			func(v domain.Sample) []string { return []string{v.ID, v.Code, v.Name, v.ProjectID} }),
		resourceCommands("testcode", "test codes",
			func() api.ResourceService[domain.TestCode] { return a.client.TestCodes },
			[]string{"ID", "CODE", "NAME", "METHOD"},
			func(v domain.TestCode) []string { return []string{v.ID, v.Code, v.Name, v.Method} }),
		resourceCommands("receiving", "receiving log entries",
			func() api.ResourceService[domain.Receiving] { return a.client.Receivings },
			[]string{"ID", "NUMBER", "PARTNER", "LINES"},
			func(v domain.Receiving) []string {
				return []string{v.ID, v.Number, v.PartnerID, fmt.Sprintf("%d", len(v.Lines))}
			}),
		resourceCommands("shipping", "shipping log entries",
			func() api.ResourceService[domain.Shipping] { return a.client.Shippings },
			[]string{"ID", "NUMBER", "PARTNER"},
			func(v domain.Shipping) []string { return []string{v.ID, v.Number, v.PartnerID} }),
		resourceCommands("instance", "instances",
			func() api.ResourceService[domain.Instance] { return a.client.Instances },
			[]string{"ID", "CODE", "SAMPLE", "WAREHOUSE"},
			func(v domain.Instance) []string {
				sample := v.SampleCode
				if sample == "" {
					sample = v.SampleID
				}
				return []string{v.ID, v.Code, sample, v.WarehouseID}
			}),
		resourceCommands("warehouse", "warehouses",
			func() api.ResourceService[domain.Warehouse] { return a.client.Warehouses },
			[]string{"ID", "CODE", "NAME"},
			func(v domain.Warehouse) []string { return []string{v.ID, v.Code, v.Name} }),
		resourceCommands("role", "roles",
			func() api.ResourceService[domain.Role] { return a.client.Roles },
			[]string{"ID", "NAME", "SYSTEM"},
			func(v domain.Role) []string { return []string{v.ID, v.Name, fmt.Sprintf("%t", v.IsSystemRole)} }),
		resourceCommands("grant", "role permission grants",
			func() api.ResourceService[domain.RolePermission] { return a.client.Grants },
			[]string{"ID", "ROLE", "MODULE", "ACTIONS"},
			func(v domain.RolePermission) []string {
				return []string{v.ID, v.RoleID, v.Module, fmt.Sprintf("%v", v.AllowedActions)}
			}),
		resourceCommands("user", "users",
			func() api.ResourceService[domain.User] { return a.client.Users },
			[]string{"ID", "NAME", "EMAIL", "ACTIVE"},
			func(v domain.User) []string { return []string{v.ID, v.Name, v.Email, fmt.Sprintf("%t", v.IsActive)} }),
		resourceCommands("company", "companies",
			func() api.ResourceService[domain.Company] { return a.client.Companies },
			[]string{"ID", "NAME"},
			func(v domain.Company) []string { return []string{v.ID, v.Name} }),
	)
}
