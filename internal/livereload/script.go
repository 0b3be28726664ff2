package livereload

// ClientScript connects a page to the hub and reloads it on request. It
// reconnects with a small delay after the server restarts.
const ClientScript = `<script>
(function () {
  var scheme = location.protocol === "https:" ? "wss:" : "ws:";
  function connect() {
    var socket = new WebSocket(scheme + "//" + location.host + "` + Path + `");
    socket.onmessage = function (event) {
      try {
        if (JSON.parse(event.data).type === "reload") { location.reload(); }
      } catch (e) {}
    };
    socket.onclose = function () { setTimeout(connect, 1000); };
  }
  connect();
})();
</script>`
