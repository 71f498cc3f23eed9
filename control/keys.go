// control/keys.go
// Author: momentics <momentics@gmail.com>

package control

// Configuration keys understood by the runtime packages.
const (
	KeyMaxFds          = "ufio.max_fds"
	KeyRecvSockBuf     = "ufio.recv_sock_buf"
	KeySendSockBuf     = "ufio.send_sock_buf"
	KeySleepPoolSize   = "ufio.sleep_pool_size"
	KeyConnPoolMaxIdle = "ufio.conn_pool_max_idle"
	KeyAcceptBacklog   = "ufio.accept_backlog"

	KeyIOThreads  = "server.io_threads"
	KeyListenAddr = "server.listen_addr"
	KeyPort       = "server.port"

	KeyLogLevel = "log.level"

	KeyNameservers  = "dns.nameservers"
	KeyDNSCacheSize = "dns.cache_size"
)
