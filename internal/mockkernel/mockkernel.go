// Package mockkernel provides an in-memory network kernel (bridges, bonds,
// VLANs, STP, MAC, FDB/ARP diagnostics) implementing kernelapi.Kernel. It
// is the reference kernel the CLI runs genes against and the kernel the
// safety-layer tests drive.
package mockkernel

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"

	"github.com/selfgene/sg/internal/kernelapi"
)

type bridgeState struct {
	name          string
	interfaces    []string
	stpEnabled    bool
	forwardDelay  int
}

type bondState struct {
	name    string
	mode    string
	members []string
	active  bool
}

type vlanState struct {
	parent string
	vlanID int
}

type interfaceState struct {
	name      string
	mac       string
	carrier   bool
	operstate string
	master    string
}

type fdbEntry struct {
	mac     string
	port    string
	vlan    int
	isLocal bool
}

type arpEntry struct {
	ip     string
	mac    string
	device string
}

// Kernel is the in-memory network domain kernel. All exported methods are
// safe for concurrent use: the engine's Verify Scheduler may call back in
// from a timer goroutine while the orchestrator's main loop also drives
// this kernel (spec §9 Open Questions, option (b)).
type Kernel struct {
	mu sync.Mutex

	bridges    map[string]*bridgeState
	bonds      map[string]*bondState
	vlans      map[string]*vlanState
	interfaces map[string]*interfaceState
	fdb        map[string][]fdbEntry
	arpTable   []arpEntry
	tracked    []kernelapi.TrackedResource

	injectedFailures map[string]string
	failAt           int
	mutationCount    int
}

// New returns an empty network kernel.
func New() *Kernel {
	return &Kernel{
		bridges:          make(map[string]*bridgeState),
		bonds:            make(map[string]*bondState),
		vlans:            make(map[string]*vlanState),
		interfaces:       make(map[string]*interfaceState),
		fdb:              make(map[string][]fdbEntry),
		injectedFailures: make(map[string]string),
	}
}

var _ kernelapi.Kernel = (*Kernel)(nil)

func (k *Kernel) Reset(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.bridges = make(map[string]*bridgeState)
	k.bonds = make(map[string]*bondState)
	k.vlans = make(map[string]*vlanState)
	k.interfaces = make(map[string]*interfaceState)
	k.fdb = make(map[string][]fdbEntry)
	k.arpTable = nil
	k.tracked = nil
	k.injectedFailures = make(map[string]string)
	k.failAt = 0
	k.mutationCount = 0
	return nil
}

func (k *Kernel) CreateShadow(ctx context.Context) (kernelapi.Kernel, error) {
	return New(), nil
}

func (k *Kernel) DomainName() string { return "network" }

func (k *Kernel) TrackResource(ctx context.Context, resourceType, name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, r := range k.tracked {
		if r.Type == resourceType && r.Name == name {
			return nil
		}
	}
	k.tracked = append(k.tracked, kernelapi.TrackedResource{Type: resourceType, Name: name})
	return nil
}

func (k *Kernel) UntrackResource(ctx context.Context, resourceType, name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, r := range k.tracked {
		if r.Type == resourceType && r.Name == name {
			k.tracked = append(k.tracked[:i], k.tracked[i+1:]...)
			break
		}
	}
	return nil
}

func (k *Kernel) TrackedResources(ctx context.Context) ([]kernelapi.TrackedResource, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]kernelapi.TrackedResource, len(k.tracked))
	copy(out, k.tracked)
	return out, nil
}

func (k *Kernel) DeleteResource(ctx context.Context, resourceType, name string) error {
	switch resourceType {
	case "bridge":
		if err := k.DeleteBridge(ctx, name); err != nil {
			return err
		}
	case "bond":
		if err := k.DeleteBond(ctx, name); err != nil {
			return err
		}
	case "vlan":
		if dot := strings.LastIndex(name, "."); dot > 0 {
			var vlanID int
			if _, err := fmt.Sscanf(name[dot+1:], "%d", &vlanID); err == nil {
				_ = k.DeleteVlan(ctx, name[:dot], vlanID)
			}
		}
	}
	return k.UntrackResource(ctx, resourceType, name)
}

func (k *Kernel) DescribeOperations(ctx context.Context) ([]string, error) {
	return []string{
		"create_bridge(name, interfaces) -> dict",
		"delete_bridge(name) -> None",
		"attach_interface(bridge, interface) -> None",
		"detach_interface(bridge, interface) -> None",
		"get_bridge(name) -> dict | None",
		"set_stp(bridge_name, enabled, forward_delay) -> dict",
		"get_stp_state(bridge) -> dict",
		"get_device_mac(device) -> str",
		"set_device_mac(device, mac) -> None",
		"send_gratuitous_arp(interface, mac) -> None",
		"create_bond(name, mode, members) -> dict",
		"delete_bond(name) -> None",
		"get_bond(name) -> dict | None",
		"create_vlan(parent, vlan_id) -> dict",
		"delete_vlan(parent, vlan_id) -> None",
		"get_vlan(parent, vlan_id) -> dict | None",
		"read_fdb(bridge) -> list[dict]",
		"get_interface_state(interface) -> dict",
		"get_arp_table() -> list[dict]",
	}, nil
}

func (k *Kernel) MutationPromptContext(ctx context.Context) (string, error) {
	return "This gene operates on Linux network configuration. gene_sdk is a " +
		"NetworkKernel providing bridge, bond, VLAN, STP, MAC, and diagnostic " +
		"operations. Bridges group interfaces. VLANs segment traffic. STP " +
		"prevents loops. Bonds aggregate links.", nil
}

// InjectFailure arranges for the named operation's next call to fail with
// message, consumed once.
func (k *Kernel) InjectFailure(operation, message string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.injectedFailures[operation] = message
}

// InjectLinkFailure marks an interface down, used by the fitness-feedback
// scenario.
func (k *Kernel) InjectLinkFailure(interface_ string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	iface := k.ensureInterfaceLocked(interface_)
	iface.carrier = false
	iface.operstate = "down"
}

func (k *Kernel) checkFailureLocked(operation string) error {
	if msg, ok := k.injectedFailures[operation]; ok {
		delete(k.injectedFailures, operation)
		return fmt.Errorf("%s", msg)
	}
	return nil
}

func (k *Kernel) ensureInterfaceLocked(name string) *interfaceState {
	if iface, ok := k.interfaces[name]; ok {
		return iface
	}
	iface := &interfaceState{name: name, mac: generateMAC(name), carrier: true, operstate: "up"}
	k.interfaces[name] = iface
	return iface
}

func generateMAC(seed string) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(seed))
	sum := h.Sum64()
	octets := make([]byte, 6)
	for i := 0; i < 6; i++ {
		octets[i] = byte(sum >> (uint(i) * 8))
	}
	octets[0] = (octets[0] & 0xFE) | 0x02
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x",
		octets[0], octets[1], octets[2], octets[3], octets[4], octets[5])
}

func bridgeDict(b *bridgeState) map[string]interface{} {
	return map[string]interface{}{
		"name":          b.name,
		"interfaces":    append([]string{}, b.interfaces...),
		"stp_enabled":   b.stpEnabled,
		"forward_delay": b.forwardDelay,
	}
}

func bondDict(b *bondState) map[string]interface{} {
	return map[string]interface{}{
		"name":    b.name,
		"mode":    b.mode,
		"members": append([]string{}, b.members...),
		"active":  b.active,
	}
}

func vlanDict(v *vlanState) map[string]interface{} {
	return map[string]interface{}{
		"name":    fmt.Sprintf("%s.%d", v.parent, v.vlanID),
		"parent":  v.parent,
		"vlan_id": v.vlanID,
	}
}

// --- Bridge operations ---

func (k *Kernel) CreateBridge(ctx context.Context, name string, interfaces []string) (map[string]interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("create_bridge"); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("bridge name cannot be empty")
	}
	if _, exists := k.bridges[name]; exists {
		return nil, fmt.Errorf("bridge %q already exists", name)
	}
	b := &bridgeState{name: name, interfaces: append([]string{}, interfaces...), forwardDelay: 15}
	k.bridges[name] = b
	k.fdb[name] = nil
	k.ensureInterfaceLocked(name)
	for _, iface := range interfaces {
		st := k.ensureInterfaceLocked(iface)
		st.master = name
	}
	return bridgeDict(b), nil
}

func (k *Kernel) DeleteBridge(ctx context.Context, name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("delete_bridge"); err != nil {
		return err
	}
	b, ok := k.bridges[name]
	if !ok {
		return fmt.Errorf("bridge %q does not exist", name)
	}
	for _, iface := range b.interfaces {
		if st, ok := k.interfaces[iface]; ok {
			st.master = ""
		}
	}
	delete(k.bridges, name)
	delete(k.fdb, name)
	delete(k.interfaces, name)
	return nil
}

func (k *Kernel) AttachInterface(ctx context.Context, bridge, interface_ string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("attach_interface"); err != nil {
		return err
	}
	b, ok := k.bridges[bridge]
	if !ok {
		return fmt.Errorf("bridge %q does not exist", bridge)
	}
	for _, existing := range b.interfaces {
		if existing == interface_ {
			return fmt.Errorf("interface %q already attached to %q", interface_, bridge)
		}
	}
	b.interfaces = append(b.interfaces, interface_)
	st := k.ensureInterfaceLocked(interface_)
	st.master = bridge
	return nil
}

func (k *Kernel) DetachInterface(ctx context.Context, bridge, interface_ string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("detach_interface"); err != nil {
		return err
	}
	b, ok := k.bridges[bridge]
	if !ok {
		return fmt.Errorf("bridge %q does not exist", bridge)
	}
	idx := -1
	for i, existing := range b.interfaces {
		if existing == interface_ {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("interface %q not attached to %q", interface_, bridge)
	}
	b.interfaces = append(b.interfaces[:idx], b.interfaces[idx+1:]...)
	if st, ok := k.interfaces[interface_]; ok {
		st.master = ""
	}
	return nil
}

func (k *Kernel) GetBridge(ctx context.Context, name string) (map[string]interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.bridges[name]
	if !ok {
		return nil, nil
	}
	return bridgeDict(b), nil
}

// --- STP operations ---

func (k *Kernel) SetStp(ctx context.Context, bridgeName string, enabled bool, forwardDelay int) (map[string]interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("set_stp"); err != nil {
		return nil, err
	}
	b, ok := k.bridges[bridgeName]
	if !ok {
		return nil, fmt.Errorf("bridge %q does not exist", bridgeName)
	}
	if forwardDelay < 1 || forwardDelay > 30 {
		return nil, fmt.Errorf("forward_delay must be 1-30, got %d", forwardDelay)
	}
	b.stpEnabled = enabled
	b.forwardDelay = forwardDelay
	return bridgeDict(b), nil
}

func (k *Kernel) GetStpState(ctx context.Context, bridge string) (map[string]interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("get_stp_state"); err != nil {
		return nil, err
	}
	b, ok := k.bridges[bridge]
	if !ok {
		return nil, fmt.Errorf("bridge %q does not exist", bridge)
	}
	return map[string]interface{}{
		"bridge":          bridge,
		"enabled":         b.stpEnabled,
		"forward_delay":   b.forwardDelay,
		"root_id":         bridge,
		"bridge_id":       bridge,
		"topology_change": false,
	}, nil
}

// --- MAC operations ---

func (k *Kernel) GetDeviceMAC(ctx context.Context, device string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("get_device_mac"); err != nil {
		return "", err
	}
	iface, ok := k.interfaces[device]
	if !ok {
		return "", fmt.Errorf("device %q does not exist", device)
	}
	return iface.mac, nil
}

func (k *Kernel) SetDeviceMAC(ctx context.Context, device, mac string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("set_device_mac"); err != nil {
		return err
	}
	iface, ok := k.interfaces[device]
	if !ok {
		return fmt.Errorf("device %q does not exist", device)
	}
	iface.mac = mac
	return nil
}

func (k *Kernel) SendGratuitousARP(ctx context.Context, interface_, mac string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.checkFailureLocked("send_gratuitous_arp")
}

// --- Bond operations ---

func (k *Kernel) CreateBond(ctx context.Context, name, mode string, members []string) (map[string]interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("create_bond"); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("bond name cannot be empty")
	}
	if _, exists := k.bonds[name]; exists {
		return nil, fmt.Errorf("bond %q already exists", name)
	}
	b := &bondState{name: name, mode: mode, members: append([]string{}, members...), active: true}
	k.bonds[name] = b
	k.ensureInterfaceLocked(name)
	for _, m := range members {
		st := k.ensureInterfaceLocked(m)
		st.master = name
	}
	return bondDict(b), nil
}

func (k *Kernel) DeleteBond(ctx context.Context, name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("delete_bond"); err != nil {
		return err
	}
	b, ok := k.bonds[name]
	if !ok {
		return fmt.Errorf("bond %q does not exist", name)
	}
	for _, m := range b.members {
		if st, ok := k.interfaces[m]; ok {
			st.master = ""
		}
	}
	delete(k.bonds, name)
	delete(k.interfaces, name)
	return nil
}

func (k *Kernel) GetBond(ctx context.Context, name string) (map[string]interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	b, ok := k.bonds[name]
	if !ok {
		return nil, nil
	}
	return bondDict(b), nil
}

// --- VLAN operations ---

func vlanKey(parent string, vlanID int) string { return fmt.Sprintf("%s.%d", parent, vlanID) }

func (k *Kernel) CreateVlan(ctx context.Context, parent string, vlanID int) (map[string]interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("create_vlan"); err != nil {
		return nil, err
	}
	key := vlanKey(parent, vlanID)
	if _, exists := k.vlans[key]; exists {
		return nil, fmt.Errorf("VLAN %d already exists on %q", vlanID, parent)
	}
	if vlanID < 1 || vlanID > 4094 {
		return nil, fmt.Errorf("VLAN ID must be 1-4094, got %d", vlanID)
	}
	v := &vlanState{parent: parent, vlanID: vlanID}
	k.vlans[key] = v
	k.ensureInterfaceLocked(key)
	return vlanDict(v), nil
}

func (k *Kernel) DeleteVlan(ctx context.Context, parent string, vlanID int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("delete_vlan"); err != nil {
		return err
	}
	key := vlanKey(parent, vlanID)
	if _, ok := k.vlans[key]; !ok {
		return fmt.Errorf("VLAN %d does not exist on %q", vlanID, parent)
	}
	delete(k.vlans, key)
	delete(k.interfaces, key)
	return nil
}

func (k *Kernel) GetVlan(ctx context.Context, parent string, vlanID int) (map[string]interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	v, ok := k.vlans[vlanKey(parent, vlanID)]
	if !ok {
		return nil, nil
	}
	return vlanDict(v), nil
}

// --- Diagnostic reads ---

func (k *Kernel) ReadFDB(ctx context.Context, bridge string) ([]map[string]interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("read_fdb"); err != nil {
		return nil, err
	}
	if _, ok := k.bridges[bridge]; !ok {
		return nil, fmt.Errorf("bridge %q does not exist", bridge)
	}
	entries := k.fdb[bridge]
	out := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		out = append(out, map[string]interface{}{
			"mac": e.mac, "port": e.port, "vlan": e.vlan, "is_local": e.isLocal,
		})
	}
	return out, nil
}

// AddFDBEntry directly injects an FDB entry for test setup.
func (k *Kernel) AddFDBEntry(bridge, mac, port string, vlan int, isLocal bool) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.bridges[bridge]; !ok {
		return fmt.Errorf("bridge %q does not exist", bridge)
	}
	k.fdb[bridge] = append(k.fdb[bridge], fdbEntry{mac: mac, port: port, vlan: vlan, isLocal: isLocal})
	return nil
}

func (k *Kernel) GetInterfaceState(ctx context.Context, interface_ string) (map[string]interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("get_interface_state"); err != nil {
		return nil, err
	}
	iface, ok := k.interfaces[interface_]
	if !ok {
		return nil, fmt.Errorf("interface %q does not exist", interface_)
	}
	return map[string]interface{}{
		"name": iface.name, "mac": iface.mac, "carrier": iface.carrier,
		"operstate": iface.operstate, "master": iface.master,
	}, nil
}

func (k *Kernel) GetARPTable(ctx context.Context) ([]map[string]interface{}, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.checkFailureLocked("get_arp_table"); err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(k.arpTable))
	for _, e := range k.arpTable {
		out = append(out, map[string]interface{}{"ip": e.ip, "mac": e.mac, "device": e.device})
	}
	return out, nil
}

// AddARPEntry directly injects an ARP entry for test setup.
func (k *Kernel) AddARPEntry(ip, mac, device string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.arpTable = append(k.arpTable, arpEntry{ip: ip, mac: mac, device: device})
}

// MutatingOps returns the undo machinery for each mutating operation, in
// the shape the Safety Layer's SafeKernel expects.
func (k *Kernel) MutatingOps() map[string]kernelapi.MutatingOp {
	return map[string]kernelapi.MutatingOp{
		"create_bridge": {
			Label: "create_bridge",
			Undo: func(ctx context.Context, snapshot interface{}, args map[string]interface{}) error {
				return k.DeleteBridge(ctx, strArg(args, "name"))
			},
		},
		"delete_bridge": {
			Label: "delete_bridge",
			Snapshot: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return k.GetBridge(ctx, strArg(args, "name"))
			},
			Undo: func(ctx context.Context, snapshot interface{}, args map[string]interface{}) error {
				if snapshot == nil {
					return nil
				}
				b := snapshot.(map[string]interface{})
				_, err := k.CreateBridge(ctx, b["name"].(string), toStringSlice(b["interfaces"]))
				return err
			},
		},
		"attach_interface": {
			Label: "attach_interface",
			Undo: func(ctx context.Context, snapshot interface{}, args map[string]interface{}) error {
				return k.DetachInterface(ctx, strArg(args, "bridge"), strArg(args, "interface"))
			},
		},
		"detach_interface": {
			Label: "detach_interface",
			Undo: func(ctx context.Context, snapshot interface{}, args map[string]interface{}) error {
				return k.AttachInterface(ctx, strArg(args, "bridge"), strArg(args, "interface"))
			},
		},
		"set_stp": {
			Label: "set_stp",
			Snapshot: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return k.GetStpState(ctx, strArg(args, "bridge_name"))
			},
			Undo: func(ctx context.Context, snapshot interface{}, args map[string]interface{}) error {
				s := snapshot.(map[string]interface{})
				_, err := k.SetStp(ctx, strArg(args, "bridge_name"), s["enabled"].(bool), s["forward_delay"].(int))
				return err
			},
		},
		"set_device_mac": {
			Label: "set_device_mac",
			Snapshot: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return k.GetDeviceMAC(ctx, strArg(args, "device"))
			},
			Undo: func(ctx context.Context, snapshot interface{}, args map[string]interface{}) error {
				return k.SetDeviceMAC(ctx, strArg(args, "device"), snapshot.(string))
			},
		},
		"create_bond": {
			Label: "create_bond",
			Undo: func(ctx context.Context, snapshot interface{}, args map[string]interface{}) error {
				return k.DeleteBond(ctx, strArg(args, "name"))
			},
		},
		"delete_bond": {
			Label: "delete_bond",
			Snapshot: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return k.GetBond(ctx, strArg(args, "name"))
			},
			Undo: func(ctx context.Context, snapshot interface{}, args map[string]interface{}) error {
				if snapshot == nil {
					return nil
				}
				b := snapshot.(map[string]interface{})
				_, err := k.CreateBond(ctx, b["name"].(string), b["mode"].(string), toStringSlice(b["members"]))
				return err
			},
		},
		"create_vlan": {
			Label: "create_vlan",
			Undo: func(ctx context.Context, snapshot interface{}, args map[string]interface{}) error {
				return k.DeleteVlan(ctx, strArg(args, "parent"), intArg(args, "vlan_id"))
			},
		},
		"delete_vlan": {
			Label: "delete_vlan",
			Snapshot: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
				return k.GetVlan(ctx, strArg(args, "parent"), intArg(args, "vlan_id"))
			},
			Undo: func(ctx context.Context, snapshot interface{}, args map[string]interface{}) error {
				if snapshot == nil {
					return nil
				}
				v := snapshot.(map[string]interface{})
				_, err := k.CreateVlan(ctx, v["parent"].(string), v["vlan_id"].(int))
				return err
			},
		},
	}
}

func toStringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, len(vv))
		for i, e := range vv {
			out[i] = fmt.Sprint(e)
		}
		return out
	default:
		return nil
	}
}

// Call dispatches a named operation by its string name, the dynamic entry
// point the sandboxed gene's SDK handle routes through.
func (k *Kernel) Call(ctx context.Context, operation string, args map[string]interface{}) (interface{}, error) {
	switch operation {
	case "create_bridge":
		return k.CreateBridge(ctx, strArg(args, "name"), strSliceArg(args, "interfaces"))
	case "delete_bridge":
		return nil, k.DeleteBridge(ctx, strArg(args, "name"))
	case "attach_interface":
		return nil, k.AttachInterface(ctx, strArg(args, "bridge"), strArg(args, "interface"))
	case "detach_interface":
		return nil, k.DetachInterface(ctx, strArg(args, "bridge"), strArg(args, "interface"))
	case "get_bridge":
		return k.GetBridge(ctx, strArg(args, "name"))
	case "set_stp":
		return k.SetStp(ctx, strArg(args, "bridge_name"), boolArg(args, "enabled"), intArg(args, "forward_delay"))
	case "get_stp_state":
		return k.GetStpState(ctx, strArg(args, "bridge"))
	case "get_device_mac":
		return k.GetDeviceMAC(ctx, strArg(args, "device"))
	case "set_device_mac":
		return nil, k.SetDeviceMAC(ctx, strArg(args, "device"), strArg(args, "mac"))
	case "send_gratuitous_arp":
		return nil, k.SendGratuitousARP(ctx, strArg(args, "interface"), strArg(args, "mac"))
	case "create_bond":
		return k.CreateBond(ctx, strArg(args, "name"), strArg(args, "mode"), strSliceArg(args, "members"))
	case "delete_bond":
		return nil, k.DeleteBond(ctx, strArg(args, "name"))
	case "get_bond":
		return k.GetBond(ctx, strArg(args, "name"))
	case "create_vlan":
		return k.CreateVlan(ctx, strArg(args, "parent"), intArg(args, "vlan_id"))
	case "delete_vlan":
		return nil, k.DeleteVlan(ctx, strArg(args, "parent"), intArg(args, "vlan_id"))
	case "get_vlan":
		return k.GetVlan(ctx, strArg(args, "parent"), intArg(args, "vlan_id"))
	case "read_fdb":
		return k.ReadFDB(ctx, strArg(args, "bridge"))
	case "get_interface_state":
		return k.GetInterfaceState(ctx, strArg(args, "interface"))
	case "get_arp_table":
		return k.GetARPTable(ctx)
	default:
		return nil, fmt.Errorf("unknown network operation %q", operation)
	}
}

func strArg(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

func boolArg(args map[string]interface{}, key string) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return false
}

func intArg(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func strSliceArg(args map[string]interface{}, key string) []string {
	return toStringSlice(args[key])
}

// SortedTrackedTypes returns the distinct resource types currently
// tracked, sorted, for diagnostics/tests.
func (k *Kernel) SortedTrackedTypes() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	seen := map[string]bool{}
	for _, r := range k.tracked {
		seen[r.Type] = true
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
