package ribsummary

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"google.golang.org/protobuf/encoding/protojson"
)

// Output formats.
const (
	FormatJSON  = "json"
	FormatTable = "table"
)

// ErrUnsupportedFormat is returned when the requested output format is not
// supported.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Write renders results in the requested format.
func Write(w io.Writer, results []PeerTable, format string) error {
	switch format {
	case FormatJSON:
		return RenderJSON(w, results)
	case FormatTable:
		return RenderTable(w, results)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// RenderJSON writes one line per peer: the peer address followed by the
// table summary as JSON, or by the error.
func RenderJSON(w io.Writer, results []PeerTable) error {
	opts := protojson.MarshalOptions{UseProtoNames: true, EmitUnpopulated: true}

	for _, r := range results {
		var line string
		if r.Err != nil {
			line = fmt.Sprintf("%s: error: %v", r.Peer, r.Err)
		} else {
			b, err := opts.Marshal(r.Table)
			if err != nil {
				return fmt.Errorf("marshal table of %s: %w", r.Peer, err)
			}
			line = fmt.Sprintf("%s: %s", r.Peer, b)
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

// RenderTable writes an aligned table with one row per peer.
func RenderTable(w io.Writer, results []PeerTable) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PEER\tDESTINATIONS\tPATHS\tACCEPTED\tERROR")

	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%v\n", r.Peer, r.Err)
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t\n",
			r.Peer,
			r.Table.GetNumDestination(),
			r.Table.GetNumPath(),
			r.Table.GetNumAccepted(),
		)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush tabwriter: %w", err)
	}
	return nil
}
