package render

import (
	"fmt"
	"io"

	"github.com/danmuck/cxlctl/internal/protocol/control"
	"github.com/danmuck/cxlctl/internal/protocol/emapi"
)

func EID(w io.Writer, eid uint8) {
	fmt.Fprintf(w, "EID: 0x%02x\n", eid)
}

func UUID(w io.Writer, r *control.GetUUIDRsp) {
	fmt.Fprintf(w, "MCTP UUID: %s\n", r.UUID)
}

func Versions(w io.Writer, r *control.GetVersionRsp) {
	for i, v := range r.Versions {
		fmt.Fprintf(w, "[%02d] %s\n", i, v)
	}
}

func MessageTypes(w io.Writer, r *control.GetMsgTypesRsp) {
	for i, t := range r.Types {
		fmt.Fprintf(w, "%02d: %d - %s\n", i, uint8(t), t)
	}
}

func Devices(w io.Writer, r *emapi.ListDevRsp) {
	for _, d := range r.Devices {
		fmt.Fprintf(w, "%3d: %s\n", d.ID, d.Name)
	}
}
