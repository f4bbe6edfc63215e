package overlay

// MarkerClass is the class carried by every comment marker.
const MarkerClass = "pinup-comment-dot"

// MarkerIDAttr holds the comment id on a marker element.
const MarkerIDAttr = "data-pinup-id"

// StylesID is the id of the injected <style> element.
const StylesID = "pinup-dot-styles"

// Styles is the marker stylesheet injected on Start.
const Styles = `
.pinup-comment-dot {
  position: absolute;
  width: 24px;
  height: 24px;
  border-radius: 50%;
  background: #ec4899;
  border: 2px solid white;
  color: white;
  font-size: 11px;
  font-weight: bold;
  font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
  display: none;
  align-items: center;
  justify-content: center;
  cursor: pointer;
  transform: translate(-50%, -50%);
  box-shadow: 0 2px 8px rgba(0,0,0,0.3);
  transition: transform 0.15s, background 0.15s;
  z-index: 999999;
  pointer-events: auto;
  padding: 0;
}
.pinup-comment-dot.pinup-visible { display: flex; }
.pinup-comment-dot:hover { transform: translate(-50%, -50%) scale(1.1); }
.pinup-comment-dot.highlighted {
  background: #f472b6;
  transform: translate(-50%, -50%) scale(1.25);
}
`
