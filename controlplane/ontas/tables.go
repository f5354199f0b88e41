package ontas

// Names below are the schema contract with the zoom_capture_anony program.
const (
	// SendPktTable forwards zoom packets to the configured egress port.
	SendPktTable = "send_pkt"
	// SendPktKey is the ingress metadata flag set by the zoom parser.
	SendPktKey = "ig_md.is_zoom_pkt"
	// SendPktAction takes the egress port as its only parameter.
	SendPktAction = "set_egress_port"
	// SendPktPortParam is the parameter of SendPktAction.
	SendPktPortParam = "port"

	// AnonKey is the header flag every anonymization table matches on.
	AnonKey = "hdr.zoom.is_zoom_pkt"

	SrcIPTable  = "anony_srcip_tb"
	SrcIPKey    = "hdr.ipv4.src_addr"
	SrcIPAction = "prepare_srcip_hash_action"
	DstIPTable  = "anony_dstip_tb"
	DstIPKey    = "hdr.ipv4.dst_addr"
	DstIPAction = "prepare_dstip_hash_action"

	Mask1Param = "mask1"
	Mask2Param = "mask2"
)

// AnonTable is an anonymization table programmed with a single catch-all
// entry invoking a parameterless action.
type AnonTable struct {
	Table  string
	Action string
}

// AnonTables lists the optional anonymization tables in programming order.
//
// Programs built without some of the anonymization features lack the
// corresponding tables.
var AnonTables = []AnonTable{
	{Table: "anony_mac_src_id_tb", Action: "hash_mac_src_id_action"},
	{Table: "anony_mac_dst_id_tb", Action: "hash_mac_dst_id_action"},
	{Table: "anony_arp_mac_src_id_tb", Action: "hash_arp_mac_src_id_action"},
	{Table: "anony_arp_mac_dst_id_tb", Action: "hash_arp_mac_dst_id_action"},
	{Table: "multicast_mac_catch_tb", Action: "multicast_mac_catch_action"},
	{Table: "ipv4_ip_overwite_tb", Action: "ip_overwrite_action"},
	{Table: "arp_ip_overwrite_tb", Action: "arp_ip_overwrite_action"},
}
